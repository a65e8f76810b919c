package logsvc

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

func TestNewSilentLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var (
		mu       sync.Mutex
		reported []string
	)
	rollbar.SetEndpoint(srv.URL + "/")
	rollbar.SetTransform(func(data map[string]interface{}) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, fmt.Sprint(data["level"]))
	})
	defer func() {
		rollbar.SetTransform(func(map[string]interface{}) {})
		rollbar.SetEnabled(false)
	}()

	logger := NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "TEST", RollbarToken: "token"})

	// building a silent logger leaves the reporting logger alone
	silent := NewSilentLogger()
	silent.Enable(false)
	silent.Error("dropped")

	logger.Error("reported")
	rollbar.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"error"}, reported)
}
