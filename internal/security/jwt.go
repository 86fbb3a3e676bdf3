package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/golang-jwt/jwt/v5"
)

const ticketIssuer = "listing-cloner"

// TicketManager подписывает и проверяет билеты партий. Билет переносит
// список черновиков от фазы создания к фазе публикации, сервер его не хранит
type TicketManager struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// BatchClaims содержимое билета партии
type BatchClaims struct {
	jwt.RegisteredClaims
	BatchID           string   `json:"batch_id"`
	ShippingProfileID int64    `json:"shipping_profile_id"`
	DraftIDs          []string `json:"draft_ids"`
	Operator          string   `json:"operator,omitempty"`
}

// NewTicketManager создает менеджер билетов. Пустой secret заменяется случайным:
// билеты такого процесса не переживут его перезапуск
func NewTicketManager(secret string, expiration time.Duration) (*TicketManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate ticket secret: %w", err)
		}
	}

	return &TicketManager{
		secret:     key,
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// Issue подписывает билет для партии с черновиками
func (m *TicketManager) Issue(batch *models.DraftBatch, operator string) (string, error) {
	now := m.now()
	claims := BatchClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        batch.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    ticketIssuer,
			Subject:   operator,
		},
		BatchID:           batch.ID,
		ShippingProfileID: batch.ShippingProfileID,
		DraftIDs:          batch.DraftIDs,
		Operator:          operator,
	}
	if m.expiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.expiration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify проверяет подпись и срок билета и восстанавливает по нему партию
func (m *TicketManager) Verify(ticket string) (*models.DraftBatch, *BatchClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &BatchClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(ticketIssuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, utils.ErrExpiredTicket
		}
		return nil, nil, utils.ErrInvalidTicket
	}

	claims, ok := token.Claims.(*BatchClaims)
	if !ok || !token.Valid || claims.BatchID == "" {
		return nil, nil, utils.ErrInvalidTicket
	}

	draftIDs := claims.DraftIDs
	if draftIDs == nil {
		draftIDs = []string{}
	}

	batch := &models.DraftBatch{
		ID:                claims.BatchID,
		ShippingProfileID: claims.ShippingProfileID,
		DraftIDs:          draftIDs,
		State:             models.StateAwaitingPublishConfirmation,
		Ticket:            ticket,
	}
	if claims.IssuedAt != nil {
		batch.CreatedAt = claims.IssuedAt.Time
	}

	return batch, claims, nil
}
