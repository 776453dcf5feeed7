package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestAccount(t *testing.T) {
	assert.Equal(t, "DEVELOPER@vhcala4hci:50001", Account("https://VHCALA4HCI:50001", "developer"))
	assert.Equal(t, "DEVELOPER", Account("", " developer "))
}

func TestStore_Roundtrip(t *testing.T) {
	keyring.MockInit()
	s := NewStore()
	account := Account("https://sap.example.com", "dev")

	_, err := s.Password(account)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPassword(account, "s3cret"))
	pw, err := s.Password(account)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	require.NoError(t, s.SetPassword(account, "rotated"))
	pw, err = s.Password(account)
	require.NoError(t, err)
	assert.Equal(t, "rotated", pw)

	require.NoError(t, s.DeletePassword(account))
	_, err = s.Password(account)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.DeletePassword(account), "deleting twice is fine")
}

func TestStore_SetPasswordValidation(t *testing.T) {
	keyring.MockInit()
	s := NewStore()

	assert.Error(t, s.SetPassword("", "pw"))
	assert.Error(t, s.SetPassword("DEV", ""))
}
