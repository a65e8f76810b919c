package sqlxrepos_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
	emailsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/email"
	locksvc "github.com/chaima229/fraisScolaire-backend-sub000/services/lock"
	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
	"github.com/chaima229/fraisScolaire-backend-sub000/storage/database"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openTestDB connects to TEST_DATABASE_* and resets the schema. The test is skipped without a host.
func openTestDB(t *testing.T) (*core.Config, *sqlx.DB) {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}

	conf := testutil.Config()
	conf.Database.Host = host
	conf.Database.Port = getenv("TEST_DATABASE_PORT", "5432")
	conf.Database.Name = getenv("TEST_DATABASE_NAME", "frais_scolaires_test")
	conf.Database.User = getenv("TEST_DATABASE_USER", "postgres")
	conf.Database.Password = os.Getenv("TEST_DATABASE_PASSWORD")
	conf.Database.DisableTLS = true

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations("reset", db))
	require.NoError(t, database.Migrate(db))
	return conf, db
}

func TestPostgresStore(t *testing.T) {
	conf, db := openTestDB(t)
	ctx := context.Background()

	logger := logsvc.NewSilentLogger()
	numbers, err := invoice.NewNumberNode(1)
	require.NoError(t, err)
	store := shared.NewPostgresStore(db)
	svcs := shared.NewServices(shared.Deps{
		Conf:    conf,
		Logger:  logger,
		Store:   store,
		Locker:  locksvc.NewMemoryLocker(conf.Redis.LockWait),
		Mailer:  emailsvc.NewConsoleServiceMock(conf, logger),
		Sender:  new(testutil.FakeSender),
		Numbers: numbers,
	})
	year := testutil.CurrentYear()

	class, err := svcs.School.CreateClass(ctx, school.NewClass{Name: "6e A", Level: "6e", AcademicYear: year}, testutil.Admin)
	require.NoError(t, err)
	_, err = svcs.School.CreateClass(ctx, school.NewClass{Name: "6E a", Level: "6e", AcademicYear: year}, testutil.Admin)
	assert.ErrorIs(t, err, school.ErrClassExists)

	parent, err := svcs.School.CreateParent(ctx, school.NewParent{Name: "Maman", Email: "maman@test.cd"}, testutil.Admin)
	require.NoError(t, err)
	student, err := svcs.School.CreateStudent(ctx, school.NewStudent{
		LastName:    "Lumumba",
		FirstName:   "Patrice",
		ClassID:     class.ID,
		Nationality: "Congolaise",
		Exemptions:  []string{},
		ParentIDs:   []string{parent.ID},
	}, testutil.Admin)
	require.NoError(t, err)

	got, err := svcs.School.GetStudentByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{parent.ID}, got.ParentIDs)

	t.Run("tariff supersede", func(t *testing.T) {
		nt := tariff.NewTariff{
			Amount:       decimal.NewFromInt(60000),
			ClassID:      class.ID,
			AcademicYear: year,
			FeeType:      conf.Fees.TuitionType,
		}
		first, err := svcs.Tariffs.Create(ctx, nt, testutil.Admin)
		require.NoError(t, err)

		nt.Amount = decimal.NewFromInt(61000)
		second, err := svcs.Tariffs.Create(ctx, nt, testutil.Admin)
		require.NoError(t, err)

		first, err = svcs.Tariffs.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, first.SupersededBy)
		assert.True(t, first.Amount.Equal(decimal.NewFromInt(60000)))

		sport, err := svcs.Scholarships.Create(ctx, scholarship.NewScholarship{Name: "Sport"}, testutil.Admin)
		require.NoError(t, err)
		nt.Amount = decimal.NewFromInt(10000)
		nt.ScholarshipID = sport.ID
		funded, err := svcs.Tariffs.Create(ctx, nt, testutil.Admin)
		require.NoError(t, err)

		second, err = svcs.Tariffs.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Empty(t, second.SupersededBy)

		fees, err := svcs.Tariffs.ResolveCap(ctx, tariff.CapQuery{ClassID: class.ID, AcademicYear: year, Nationality: "Congolaise"})
		require.NoError(t, err)
		assert.True(t, fees.Tuition.Equal(decimal.NewFromInt(61000)), fees.Tuition.String())

		fees, err = svcs.Tariffs.ResolveCap(ctx, tariff.CapQuery{ClassID: class.ID, AcademicYear: year, ScholarshipID: sport.ID})
		require.NoError(t, err)
		assert.True(t, fees.Tuition.Equal(decimal.NewFromInt(10000)), fees.Tuition.String())

		general, err := svcs.Tariffs.Query(ctx, tariff.QueryFilter{ClassID: class.ID, ScholarshipID: tariff.NoScholarship})
		require.NoError(t, err)
		require.Len(t, general, 2)
		for _, tr := range general {
			assert.NotEqual(t, funded.ID, tr.ID)
		}
	})

	t.Run("payment and invoice", func(t *testing.T) {
		p, err := svcs.Ledger.Record(ctx, payment.NewPayment{
			StudentID: student.ID,
			Amount:    decimal.NewFromInt(1000),
			Method:    payment.MethodCash,
			Payer:     "Maman",
		}, testutil.Accountant)
		require.NoError(t, err)
		assert.Equal(t, "61800.00", p.Due.StringFixed(2))
		require.Len(t, p.InvoiceIDs, 1)

		inv, err := svcs.Invoices.GetByID(ctx, p.InvoiceIDs[0])
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPartial, inv.Status)
		assert.Equal(t, "1000.00", inv.Paid.StringFixed(2))

		_, err = svcs.Ledger.Record(ctx, payment.NewPayment{
			StudentID: student.ID,
			Amount:    decimal.NewFromInt(60801),
			Method:    payment.MethodCash,
		}, testutil.Accountant)
		var capErr *payment.CapExceededError
		require.ErrorAs(t, err, &capErr)

		balance, err := svcs.Ledger.Balance(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, "60800.00", balance.Remaining.StringFixed(2))

		lastYear, err := store.Payments.SumByStudent(ctx, student.ID, "1999-2000")
		require.NoError(t, err)
		assert.True(t, lastYear.IsZero())

		err = svcs.School.DeleteStudent(ctx, student.ID, testutil.Admin)
		assert.ErrorIs(t, err, school.ErrStudentHasRecords)
	})

	t.Run("audit and outbox", func(t *testing.T) {
		entries, err := svcs.Trail.Query(ctx, audit.QueryFilter{EntityType: payment.EntityType})
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		n, err := svcs.Outbox.Drain(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, 0)

		pending, err := store.Outbox.Query(ctx, outbox.StatusPending)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
