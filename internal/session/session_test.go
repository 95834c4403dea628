package session

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestLoginExtractsUser(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Login(devToken(t, "u-1")))

	assert.True(t, m.Authenticated())
	assert.Equal(t, "u-1", m.UserID())
	assert.NotEmpty(t, m.Token())
}

func TestLoginRejectsGarbage(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.Login("not-a-jwt"))
	assert.ErrorIs(t, m.Login(""), ErrNotAuthenticated)
	assert.False(t, m.Authenticated())
}

func TestLogoutClearsState(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Login(devToken(t, "u-1")))

	m.Logout()
	assert.False(t, m.Authenticated())
	assert.Empty(t, m.Token())
	assert.Empty(t, m.UserID())
}

func TestEventsDelivered(t *testing.T) {
	m := NewManager()
	ch := m.Subscribe()
	defer m.Unsubscribe(ch)

	require.NoError(t, m.Login(devToken(t, "u-1")))
	ev := <-ch
	assert.Equal(t, EventLogin, ev.Type)
	assert.Equal(t, "u-1", ev.UserID)

	m.Logout()
	ev = <-ch
	assert.Equal(t, EventLogout, ev.Type)
	assert.Equal(t, "u-1", ev.UserID)
}

func TestEventsDuringSubscriberChurn(t *testing.T) {
	m := NewManager()
	token := devToken(t, "u-1")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = m.Login(token)
				m.Logout()
			}
		}
	}()

	// Subscribers come and go while transitions publish; no event may
	// land on a closed channel.
	for i := 0; i < 500; i++ {
		ch := m.Subscribe()
		m.Unsubscribe(ch)
	}

	close(stop)
	wg.Wait()
}

func TestActiveGatesOnPublicRoute(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Login(devToken(t, "u-1")))
	assert.True(t, m.Active())

	// Public routes keep the sync triggers inert even when a token
	// is present.
	m.SetPublicRoute(true)
	assert.False(t, m.Active())
	assert.True(t, m.Authenticated())

	m.SetPublicRoute(false)
	assert.True(t, m.Active())
}
