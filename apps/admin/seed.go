package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

// seedFile is the layout of the yaml file loaded by `admin seed`.
// Amounts are strings so that no precision is lost before reaching decimal.
type seedFile struct {
	Classes []struct {
		Name         string `yaml:"nom"`
		Level        string `yaml:"niveau"`
		Capacity     int    `yaml:"capacite"`
		AcademicYear string `yaml:"annee_scolaire"`
	} `yaml:"classes"`

	Scholarships []struct {
		Name        string `yaml:"nom"`
		Percentage  string `yaml:"pourcentage_remise"`
		FixedAmount string `yaml:"montant_remise"`
		IsExempt    bool   `yaml:"exoneration"`
	} `yaml:"bourses"`

	Parents []struct {
		Ref   string `yaml:"ref"`
		Name  string `yaml:"nom"`
		Email string `yaml:"email"`
		Phone string `yaml:"telephone"`
	} `yaml:"parents"`

	Students []struct {
		LastName    string   `yaml:"nom"`
		FirstName   string   `yaml:"prenom"`
		Class       string   `yaml:"classe"`
		Nationality string   `yaml:"nationalite"`
		Scholarship string   `yaml:"bourse"`
		Parents     []string `yaml:"parents"`
		Exemptions  []string `yaml:"exemptions"`
	} `yaml:"etudiants"`

	Tariffs []struct {
		Class        string `yaml:"classe"`
		Nationality  string `yaml:"nationalite"`
		AcademicYear string `yaml:"annee_scolaire"`
		FeeType      string `yaml:"type_frais"`
		Amount       string `yaml:"montant"`
	} `yaml:"tarifs"`
}

type seedReport struct {
	Classes, Scholarships, Parents, Students, Tariffs, Skipped int
}

func (r seedReport) String() string {
	return fmt.Sprintf(
		"classes: %d, bourses: %d, parents: %d, etudiants: %d, tarifs: %d, skipped: %d",
		r.Classes, r.Scholarships, r.Parents, r.Students, r.Tariffs, r.Skipped,
	)
}

func (cli *commandLine) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load classes, scholarships, parents, students and tariffs from a yaml file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				_ = cmd.Help()
				return errHelp
			}
			report, err := cli.seed(cmd.Context(), file)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.out, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path of the yaml seed file")
	return cmd
}

func (cli *commandLine) seed(ctx context.Context, path string) (seedReport, error) {
	var report seedReport

	raw, err := os.ReadFile(path)
	if err != nil {
		return report, errors.Wrap(err, "reading seed file")
	}
	var data seedFile
	if err = yaml.Unmarshal(raw, &data); err != nil {
		return report, errors.Wrap(err, "parsing seed file")
	}

	svcs, err := cli.services()
	if err != nil {
		return report, err
	}
	s := seeder{cli: cli, svcs: svcs, report: &report}

	classes := make(map[string]string)
	for _, c := range data.Classes {
		id, err := s.class(ctx, school.NewClass{
			Name:         c.Name,
			Level:        c.Level,
			Capacity:     c.Capacity,
			AcademicYear: c.AcademicYear,
		})
		if err != nil {
			return report, err
		}
		classes[core.CleanString(c.Name)] = id
	}

	scholarships := make(map[string]string)
	for _, b := range data.Scholarships {
		ns := scholarship.NewScholarship{Name: b.Name, IsExempt: b.IsExempt}
		if ns.Percentage, err = parseAmount(b.Percentage); err != nil {
			return report, errors.Wrapf(err, "bourse %q: pourcentage_remise", b.Name)
		}
		if ns.FixedAmount, err = parseAmount(b.FixedAmount); err != nil {
			return report, errors.Wrapf(err, "bourse %q: montant_remise", b.Name)
		}
		id, err := s.scholarship(ctx, ns)
		if err != nil {
			return report, err
		}
		scholarships[core.CleanString(b.Name)] = id
	}

	parents := make(map[string]string)
	for _, p := range data.Parents {
		np := school.NewParent{Name: p.Name, Email: p.Email, Phone: p.Phone}
		if err = np.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "parent %q", p.Ref)
		}
		created, err := svcs.School.CreateParent(ctx, np, core.CLIActor)
		if err != nil {
			return report, errors.Wrapf(err, "parent %q", p.Ref)
		}
		report.Parents++
		parents[lo.Ternary(p.Ref != "", p.Ref, p.Name)] = created.ID
	}

	for _, e := range data.Students {
		ns := school.NewStudent{
			LastName:    e.LastName,
			FirstName:   e.FirstName,
			Nationality: e.Nationality,
			Exemptions:  e.Exemptions,
		}
		name := e.FirstName + " " + e.LastName
		var ok bool
		if ns.ClassID, ok = classes[core.CleanString(e.Class)]; !ok {
			return report, errors.Errorf("etudiant %q: unknown classe %q", name, e.Class)
		}
		if e.Scholarship != "" {
			if ns.ScholarshipID, ok = scholarships[core.CleanString(e.Scholarship)]; !ok {
				return report, errors.Errorf("etudiant %q: unknown bourse %q", name, e.Scholarship)
			}
		}
		for _, ref := range e.Parents {
			id, ok := parents[ref]
			if !ok {
				return report, errors.Errorf("etudiant %q: unknown parent %q", name, ref)
			}
			ns.ParentIDs = append(ns.ParentIDs, id)
		}
		if err = ns.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "etudiant %q", name)
		}
		if _, err = svcs.School.CreateStudent(ctx, ns, core.CLIActor); err != nil {
			return report, errors.Wrapf(err, "etudiant %q", name)
		}
		report.Students++
	}

	for _, t := range data.Tariffs {
		nt := tariff.NewTariff{
			Nationality:  t.Nationality,
			AcademicYear: t.AcademicYear,
			FeeType:      t.FeeType,
		}
		var ok bool
		if nt.ClassID, ok = classes[core.CleanString(t.Class)]; !ok {
			return report, errors.Errorf("tarif %q: unknown classe %q", t.FeeType, t.Class)
		}
		if nt.Amount, err = parseAmount(t.Amount); err != nil {
			return report, errors.Wrapf(err, "tarif %q: montant", t.FeeType)
		}
		if err = nt.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "tarif %q", t.FeeType)
		}
		// each seeded tariff supersedes the live one of its scope
		if _, err = svcs.Tariffs.Create(ctx, nt, core.CLIActor); err != nil {
			return report, errors.Wrapf(err, "tarif %q", t.FeeType)
		}
		report.Tariffs++
	}

	return report, nil
}

// seeder creates the named entities, reusing those that already exist.
type seeder struct {
	cli    *commandLine
	svcs   *shared.Services
	report *seedReport
}

func (s seeder) class(ctx context.Context, nc school.NewClass) (string, error) {
	if err := nc.Validate(s.cli.validate); err != nil {
		return "", errors.Wrapf(err, "classe %q", nc.Name)
	}
	c, err := s.svcs.School.CreateClass(ctx, nc, core.CLIActor)
	if err == nil {
		s.report.Classes++
		return c.ID, nil
	}
	if !core.IsConflict(err) {
		return "", errors.Wrapf(err, "classe %q", nc.Name)
	}

	existing, qerr := s.svcs.School.QueryClasses(ctx, school.ClassFilter{AcademicYear: nc.AcademicYear, Search: nc.Name})
	if qerr != nil {
		return "", errors.Wrapf(qerr, "classe %q", nc.Name)
	}
	found, ok := lo.Find(existing, func(c school.Class) bool { return strings.EqualFold(c.Name, nc.Name) })
	if !ok {
		return "", errors.Wrapf(err, "classe %q", nc.Name)
	}
	s.skip("classe", nc.Name, err)
	return found.ID, nil
}

func (s seeder) scholarship(ctx context.Context, ns scholarship.NewScholarship) (string, error) {
	if err := ns.Validate(s.cli.validate); err != nil {
		return "", errors.Wrapf(err, "bourse %q", ns.Name)
	}
	b, err := s.svcs.Scholarships.Create(ctx, ns, core.CLIActor)
	if err == nil {
		s.report.Scholarships++
		return b.ID, nil
	}
	if !core.IsConflict(err) {
		return "", errors.Wrapf(err, "bourse %q", ns.Name)
	}

	existing, qerr := s.svcs.Scholarships.Query(ctx, scholarship.QueryFilter{Search: ns.Name})
	if qerr != nil {
		return "", errors.Wrapf(qerr, "bourse %q", ns.Name)
	}
	found, ok := lo.Find(existing, func(b scholarship.Scholarship) bool { return strings.EqualFold(b.Name, ns.Name) })
	if !ok {
		return "", errors.Wrapf(err, "bourse %q", ns.Name)
	}
	s.skip("bourse", ns.Name, err)
	return found.ID, nil
}

func (s seeder) skip(kind, name string, err error) {
	s.report.Skipped++
	s.cli.logger.Info(fmt.Sprintf("%s %q skipped: %v", kind, name, err))
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
