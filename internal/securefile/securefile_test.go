package securefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

var fastParams = Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	opts := Options{Params: fastParams, AAD: []byte("toshi:test")}

	require.NoError(t, Write(path, doc{Name: "a", Value: 7}, []byte("hunter22"), opts))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Read[doc](path, []byte("hunter22"), opts)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "a", Value: 7}, got)

	_, err = Read[doc](path, []byte("wrong-pass"), opts)
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = Read[doc](path, []byte("hunter22"), Options{AAD: []byte("other")})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRead_RejectsTamperedParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	opts := Options{Params: fastParams}
	require.NoError(t, Write(path, doc{Name: "a"}, []byte("hunter22"), opts))

	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	for name, tamper := range map[string]func(*Envelope){
		"zero threads": func(e *Envelope) { e.Threads = 0 },
		"huge memory":  func(e *Envelope) { e.Memory = 1 << 31 },
		"zero time":    func(e *Envelope) { e.Time = 0 },
		"short key":    func(e *Envelope) { e.KeyLen = 4 },
		"short salt":   func(e *Envelope) { e.Salt = "AAAA" },
	} {
		var env Envelope
		require.NoError(t, json.Unmarshal(orig, &env))
		tamper(&env)
		b, err := json.Marshal(env)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, b, 0o600))

		_, err = Read[doc](path, []byte("hunter22"), opts)
		assert.ErrorIs(t, err, ErrBadParams, name)
	}
}

func TestWrite_RejectsBadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	bad := Options{Params: Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16}}
	assert.ErrorIs(t, Write(path, doc{}, []byte("hunter22"), bad), ErrBadParams)
	assert.NoError(t, DefaultParams.Validate())
}

func TestRead_Missing(t *testing.T) {
	_, err := Read[doc](filepath.Join(t.TempDir(), "nope"), []byte("x"), Options{})
	assert.True(t, os.IsNotExist(err))
}

func TestEnvFolder(t *testing.T) {
	for in, want := range map[string]string{"": "", "prod": "", "LOCAL": "local", "dev": "develop"} {
		t.Setenv(EnvVar, in)
		got, err := EnvFolder()
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	t.Setenv(EnvVar, "staging")
	_, err := EnvFolder()
	assert.Error(t, err)
}

func TestPathCandidates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv(EnvVar, "local")

	paths, err := PathCandidates("toshi", "wallet.json")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(home, ".config", "toshi", "local", "wallet.json"), paths[0])

	_, err = PathCandidates("", "x")
	assert.Error(t, err)
}
