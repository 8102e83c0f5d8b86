package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"
)

const (
	service        = "scan2pdf"
	collection     = secretservice.DefaultCollection
	keychainPrefix = "keychain:"
)

type secretLookup func(element string) (string, error)

// FillKeychainValues replaces every string field of args (embedded structs
// included) whose value is "keychain:<element>" with the secret stored
// under that element in the Secret Service keyring.
func FillKeychainValues[T any](args *T) error {
	k := &keyring{}
	return fillValues(reflect.ValueOf(args).Elem(), k.lookup)
}

func fillValues(v reflect.Value, lookup secretLookup) error {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			if err := fillValues(f, lookup); err != nil {
				return err
			}
			continue
		}
		if f.Kind() != reflect.String || !strings.HasPrefix(f.String(), keychainPrefix) {
			continue
		}
		if !f.CanSet() {
			return fmt.Errorf("set value for field %s", v.Type().Field(i).Name)
		}
		secretValue, err := lookup(strings.TrimPrefix(f.String(), keychainPrefix))
		if err != nil {
			return err
		}
		f.SetString(secretValue)
	}
	return nil
}

type keyring struct {
	svc     *secretservice.SecretService
	session *secretservice.Session
}

func (k *keyring) lookup(keychainElement string) (string, error) {
	if k.svc == nil {
		var err error
		k.svc, k.session, err = initSecretService()
		if err != nil {
			return "", fmt.Errorf("init secret service: %v", err)
		}
	}
	if k.session == nil {
		return "", fmt.Errorf("no session")
	}
	items, err := k.svc.SearchCollection(collection, secretservice.Attributes{
		"service": service,
		"element": keychainElement,
	})
	if err != nil {
		return "", fmt.Errorf("search keychain element: %v", err)
	}
	if len(items) < 1 {
		return "", fmt.Errorf("keychain element %s not found", keychainElement)
	}
	if len(items) > 1 {
		return "", fmt.Errorf("found more than one keychain elements for %s", keychainElement)
	}
	secretValue, err := k.svc.GetSecret(items[0], *k.session)
	if err != nil {
		return "", fmt.Errorf("get value from keychain: %v", err)
	}
	return string(secretValue), nil
}

func initSecretService() (*secretservice.SecretService, *secretservice.Session, error) {
	svc, err := secretservice.NewService()
	if err != nil {
		return nil, nil, fmt.Errorf("create keychain service: %v", err)
	}
	if err := svc.Unlock([]dbus.ObjectPath{collection}); err != nil {
		return nil, nil, fmt.Errorf("unlock keychain service: %v", err)
	}
	session, err := svc.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %v", err)
	}
	return svc, session, nil
}
