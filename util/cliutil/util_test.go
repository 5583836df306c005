package cliutil

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupDatabase(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	for _, dburl := range []string{
		"sqlite://" + filepath.Join(dir, "a", "one.sqlite"),
		"sqlite=" + filepath.Join(dir, "b", "two.sqlite"),
	} {
		db, err := SetupDatabase(dburl, 10)
		assert.NoError(err, dburl)
		if db == nil {
			continue
		}
		sqldb, err := db.DB()
		assert.NoError(err)
		assert.Equal(1, sqldb.Stats().MaxOpenConnections)
		assert.NoError(db.Exec("SELECT 1").Error)
	}

	_, err := SetupDatabase("mysql://localhost/db", 10)
	assert.Error(err)
}

func TestSetupSlog(t *testing.T) {
	assert := assert.New(t)
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logPath := filepath.Join(t.TempDir(), "groupmod.log")
	logger, err := SetupSlog(LogOptions{LogLevel: "debug", LogFormat: "JSON", LogPath: logPath})
	assert.NoError(err)
	assert.NotNil(logger)

	_, err = SetupSlog(LogOptions{LogLevel: "loud"})
	assert.Error(err)
	_, err = SetupSlog(LogOptions{LogFormat: "xml"})
	assert.Error(err)
}

func TestRobustHTTPClient(t *testing.T) {
	assert := assert.New(t)

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := RobustHTTPClient(slog.Default())
	resp, err := client.Get(srv.URL)
	assert.NoError(err)
	if resp != nil {
		defer resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)
	}
	assert.Equal(2, attempts)
}
