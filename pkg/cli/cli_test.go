package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type InnerArgs struct {
	Key string
}

type testArgs struct {
	InnerArgs
	Plain    string
	Secret   string
	Count    int
	Disabled bool
}

func reflectElem(p any) reflect.Value {
	return reflect.ValueOf(p).Elem()
}

func TestFillValues(t *testing.T) {
	args := testArgs{
		InnerArgs: InnerArgs{Key: "keychain:b2-key"},
		Plain:     "value",
		Secret:    "keychain:passphrase",
	}
	var asked []string
	err := fillValues(reflectElem(&args), func(element string) (string, error) {
		asked = append(asked, element)
		return "secret-" + element, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b2-key", "passphrase"}, asked)
	assert.Equal(t, "secret-b2-key", args.Key)
	assert.Equal(t, "secret-passphrase", args.Secret)
	assert.Equal(t, "value", args.Plain)
}

func TestFillValuesError(t *testing.T) {
	args := testArgs{Secret: "keychain:missing"}
	err := fillValues(reflectElem(&args), func(element string) (string, error) {
		return "", fmt.Errorf("keychain element %s not found", element)
	})
	assert.EqualError(t, err, "keychain element missing not found")
	assert.Equal(t, "keychain:missing", args.Secret)
}

func TestFillKeychainValuesWithoutSecrets(t *testing.T) {
	// no keychain: values, the keyring is never opened
	args := testArgs{Plain: "value"}
	require.NoError(t, FillKeychainValues(&args))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(p, []byte("SCAN2PDF_TEST_WAIT=7s\n"), 0o600))
	t.Setenv("SCAN2PDF_TEST_WAIT", "")
	require.NoError(t, os.Unsetenv("SCAN2PDF_TEST_WAIT"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), p))
	assert.Equal(t, "7s", os.Getenv("SCAN2PDF_TEST_WAIT"))
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(ScannerArgs{DiscoveryTimeout: time.Second})
	require.NoError(t, err)
	require.Len(t, r.Backends(), 2)
	assert.Equal(t, "wia", r.Backends()[0].Name())
	assert.Equal(t, "escl", r.Backends()[1].Name())

	r, err = NewRegistry(ScannerArgs{DisableWia: true, EsclHosts: []string{"192.168.1.20"}})
	require.NoError(t, err)
	require.Len(t, r.Backends(), 1)

	_, err = NewRegistry(ScannerArgs{DisableWia: true, DisableEscl: true})
	assert.Error(t, err)

	_, err = NewRegistry(ScannerArgs{EsclCaPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}
