// Package identity owns the device ID used to attribute every local write.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/ehr/fieldtriage/internal/platform/badgerdb"
)

const (
	deviceIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DeviceIDLength   = 8
)

var deviceKey = []byte("device/id")

// NewDeviceID returns a random uppercase base-36 identifier.
func NewDeviceID() string {
	max := big.NewInt(int64(len(deviceIDAlphabet)))
	var b strings.Builder
	b.Grow(DeviceIDLength)
	for i := 0; i < DeviceIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("read random source: %v", err))
		}
		b.WriteByte(deviceIDAlphabet[n.Int64()])
	}
	return b.String()
}

// ValidDeviceID reports whether id has the device ID shape.
func ValidDeviceID(id string) bool {
	if len(id) != DeviceIDLength {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(deviceIDAlphabet, c) {
			return false
		}
	}
	return true
}

// DeviceID returns the persisted device ID, generating and storing one on
// first use. The ID never changes afterwards.
func DeviceID(db *badgerdb.DB) (string, error) {
	var id string
	err := db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(deviceKey)
		switch {
		case err == nil:
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id = string(v)
			if !ValidDeviceID(id) {
				return fmt.Errorf("stored device id %q is malformed", id)
			}
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			id = NewDeviceID()
			return txn.Set(deviceKey, []byte(id))
		default:
			return err
		}
	})
	if err != nil {
		return "", fmt.Errorf("device identity: %w", err)
	}
	return id, nil
}
