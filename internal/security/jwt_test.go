package security

import (
	"strings"
	"testing"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch() *models.DraftBatch {
	return &models.DraftBatch{
		ID:                "b6a1c1c4-4a0e-4d4c-9a57-0e8f7f1c2d3e",
		ShippingProfileID: 9876,
		DraftIDs:          []string{"101", "102"},
		State:             models.StateAwaitingPublishConfirmation,
	}
}

func TestTicketRoundTrip(t *testing.T) {
	m, err := NewTicketManager("top-secret", time.Hour)
	require.NoError(t, err)

	ticket, err := m.Issue(testBatch(), "alice")
	require.NoError(t, err)

	batch, claims, err := m.Verify(ticket)
	require.NoError(t, err)
	assert.Equal(t, "b6a1c1c4-4a0e-4d4c-9a57-0e8f7f1c2d3e", batch.ID)
	assert.Equal(t, int64(9876), batch.ShippingProfileID)
	assert.Equal(t, []string{"101", "102"}, batch.DraftIDs)
	assert.Equal(t, models.StateAwaitingPublishConfirmation, batch.State)
	assert.Equal(t, ticket, batch.Ticket)
	assert.Equal(t, "alice", claims.Operator)
}

func TestTicketTamperingIsRejected(t *testing.T) {
	m, err := NewTicketManager("top-secret", time.Hour)
	require.NoError(t, err)

	ticket, err := m.Issue(testBatch(), "")
	require.NoError(t, err)

	parts := strings.Split(ticket, ".")
	require.Len(t, parts, 3)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, BatchClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: ticketIssuer},
		BatchID:          "b6a1c1c4-4a0e-4d4c-9a57-0e8f7f1c2d3e",
		DraftIDs:         []string{"101", "102", "999"},
	})
	forgedTicket, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	for name, bad := range map[string]string{
		"garbage":        "not-a-ticket",
		"empty":          "",
		"bad signature":  parts[0] + "." + parts[1] + ".AAAA",
		"foreign secret": forgedTicket,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := m.Verify(bad)
			assert.ErrorIs(t, err, utils.ErrInvalidTicket)
		})
	}
}

func TestTicketAlgNoneIsRejected(t *testing.T) {
	m, err := NewTicketManager("top-secret", time.Hour)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, BatchClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: ticketIssuer},
		BatchID:          "x",
	})
	ticket, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = m.Verify(ticket)
	assert.ErrorIs(t, err, utils.ErrInvalidTicket)
}

func TestTicketExpires(t *testing.T) {
	m, err := NewTicketManager("top-secret", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now()
	m.now = func() time.Time { return issuedAt }
	ticket, err := m.Issue(testBatch(), "")
	require.NoError(t, err)

	m.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, _, err = m.Verify(ticket)
	assert.ErrorIs(t, err, utils.ErrExpiredTicket)
}

func TestRandomSecretPerManager(t *testing.T) {
	a, err := NewTicketManager("", time.Hour)
	require.NoError(t, err)
	b, err := NewTicketManager("", time.Hour)
	require.NoError(t, err)

	ticket, err := a.Issue(testBatch(), "")
	require.NoError(t, err)

	_, _, err = a.Verify(ticket)
	require.NoError(t, err)
	_, _, err = b.Verify(ticket)
	assert.ErrorIs(t, err, utils.ErrInvalidTicket)
}
