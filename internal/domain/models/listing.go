package models

import (
	"encoding/json"
	"strings"
)

// Amount - сумма цены. Маркетплейс отдает её строкой, но иногда числом,
// поэтому принимаем оба варианта и храним исходный текст
type Amount string

// UnmarshalJSON реализует json.Unmarshaler и никогда не возвращает ошибку
// для нестроковых значений: разбор суммы происходит позже
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		*a = ""
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}

	*a = Amount(raw)
	return nil
}

// Money представляет цену объявления
type Money struct {
	Amount   Amount `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// CategoryRef ссылка на категорию маркетплейса
type CategoryRef struct {
	UUID string `json:"uuid"`
}

// ConditionRef ссылка на состояние товара
type ConditionRef struct {
	UUID string `json:"uuid"`
}

// Link HAL-ссылка
type Link struct {
	Href string `json:"href"`
}

// PhotoLinks набор ссылок на варианты (renditions) фотографии
type PhotoLinks struct {
	LargeCrop *Link `json:"large_crop,omitempty"`
	Full      *Link `json:"full,omitempty"`
}

// Photo фотография исходного объявления
type Photo struct {
	Links PhotoLinks `json:"_links"`
}

// SourceListing представляет исходное объявление, полученное с маркетплейса
type SourceListing struct {
	Make          string          `json:"make"`
	Model         string          `json:"model"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Finish        string          `json:"finish"`
	Year          json.RawMessage `json:"year,omitempty"`
	Handmade      bool            `json:"handmade"`
	OffersEnabled bool            `json:"offers_enabled"`
	Price         *Money          `json:"price,omitempty"`
	Categories    []CategoryRef   `json:"categories,omitempty"`
	Condition     *ConditionRef   `json:"condition,omitempty"`
	Photos        []Photo         `json:"photos,omitempty"`
}

// ListingState состояние объявления в ответах маркетплейса
type ListingState struct {
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

// DraftPrice цена черновика
type DraftPrice struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// DraftPayload тело запроса создания черновика
type DraftPayload struct {
	Make              string          `json:"make,omitempty"`
	Model             string          `json:"model,omitempty"`
	Title             string          `json:"title,omitempty"`
	Description       string          `json:"description,omitempty"`
	Finish            string          `json:"finish,omitempty"`
	Year              json.RawMessage `json:"year,omitempty"`
	Handmade          bool            `json:"handmade"`
	OffersEnabled     bool            `json:"offers_enabled"`
	ShippingProfileID int64           `json:"shipping_profile_id"`
	Price             DraftPrice      `json:"price"`
	Categories        []CategoryRef   `json:"categories,omitempty"`
	Condition         *ConditionRef   `json:"condition,omitempty"`
	Photos            []string        `json:"photos"`
}

// PublishPayload тело запроса перевода черновика в опубликованное состояние
type PublishPayload struct {
	Publish bool `json:"publish"`
}
