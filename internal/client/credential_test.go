package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/models"
)

func received(ch <-chan Credential) (Credential, bool) {
	select {
	case c, ok := <-ch:
		return c, ok
	default:
		return Credential{}, false
	}
}

func TestCredential_PresentAndDisplayName(t *testing.T) {
	req := require.New(t)

	req.False(Credential{}.Present())
	req.Equal(models.AnonymousSender, Credential{Token: "t"}.DisplayName())

	cred := Credential{Token: "t", User: &models.User{Name: "Mme Martin"}}
	req.True(cred.Present())
	req.Equal("Mme Martin", cred.DisplayName())
}

func TestCredentialGate_SubscribeIsPrimed(t *testing.T) {
	req := require.New(t)
	gate := NewCredentialGate(Credential{Token: "initial"})

	ch, cancel := gate.Subscribe()
	defer cancel()

	c, ok := received(ch)
	req.True(ok)
	req.Equal("initial", c.Token)
}

func TestCredentialGate_NotifiesOnlyOnTokenChange(t *testing.T) {
	req := require.New(t)
	gate := NewCredentialGate(Credential{Token: "a"})
	ch, cancel := gate.Subscribe()
	defer cancel()
	received(ch)

	// Given the same token with refreshed profile data
	gate.Set(Credential{Token: "a", User: &models.User{Name: "Alice"}})

	// Then nothing is delivered, but Current reflects the update
	_, ok := received(ch)
	req.False(ok)
	req.Equal("Alice", gate.Current().DisplayName())

	// When the token changes
	gate.Set(Credential{Token: "b"})
	c, ok := received(ch)
	req.True(ok)
	req.Equal("b", c.Token)
}

func TestCredentialGate_LatestWins(t *testing.T) {
	req := require.New(t)
	gate := NewCredentialGate(Credential{})
	ch, cancel := gate.Subscribe()
	defer cancel()

	gate.Set(Credential{Token: "1"})
	gate.Set(Credential{Token: "2"})
	gate.Set(Credential{Token: "3"})

	c, ok := received(ch)
	req.True(ok)
	req.Equal("3", c.Token)
	_, ok = received(ch)
	req.False(ok)
}

func TestCredentialGate_Clear(t *testing.T) {
	req := require.New(t)
	gate := NewCredentialGate(Credential{Token: "a"})
	ch, cancel := gate.Subscribe()
	defer cancel()
	received(ch)

	gate.Clear()

	c, ok := received(ch)
	req.True(ok)
	req.False(c.Present())
	req.False(gate.Current().Present())
}

func TestCredentialGate_CancelClosesOnce(t *testing.T) {
	req := require.New(t)
	gate := NewCredentialGate(Credential{Token: "a"})
	ch, cancel := gate.Subscribe()
	received(ch)

	cancel()
	cancel()

	_, ok := <-ch
	req.False(ok)
	req.NotPanics(func() { gate.Set(Credential{Token: "b"}) })
}
