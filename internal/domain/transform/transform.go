// Package transform содержит чистые функции подготовки клона:
// разбор списка URL, извлечение ID объявления и сборку тела черновика.
package transform

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/athebyme/listing-cloner/internal/domain/models"
)

const (
	// DefaultCurrency подставляется, если у исходной цены нет валюты
	DefaultCurrency = "USD"

	zeroPrice = "0.00"
)

// ErrInvalidShippingProfileID возвращается для нецелого или неположительного ID профиля доставки
var ErrInvalidShippingProfileID = errors.New("invalid shipping profile id")

var (
	listingIDPattern = regexp.MustCompile(`item/(\d+)`)
	decimalPattern   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,3})?$`)
	half             = big.NewRat(1, 2)
)

// SplitURLs разбивает введенный оператором текст по запятым и переводам строк.
// Пустые элементы отбрасываются, порядок сохраняется
func SplitURLs(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// ExtractListingID возвращает цифры, идущие сразу за "item/"
func ExtractListingID(url string) (string, bool) {
	m := listingIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseShippingProfileID приводит введенный оператором ID профиля доставки к целому
func ParseShippingProfileID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidShippingProfileID, s)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidShippingProfileID, id)
	}
	return id, nil
}

// HalvePrice возвращает половину суммы с двумя знаками после точки.
// Разделители тысяч и ведущий символ валюты игнорируются, любая ошибка
// разбора дает "0.00". Половины округляются от нуля
func HalvePrice(amount string) string {
	s := strings.ReplaceAll(amount, ",", "")
	s = strings.TrimLeftFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.Is(unicode.Sc, r) || unicode.IsSpace(r)
	})

	if !decimalPattern.MatchString(s) {
		return zeroPrice
	}

	value, ok := new(big.Rat).SetString(s)
	if !ok {
		return zeroPrice
	}

	return value.Mul(value, half).FloatString(2)
}

// BuildDraftPayload собирает тело черновика из исходного объявления.
// Никогда не возвращает ошибку: некорректные поля заменяются значениями по умолчанию
func BuildDraftPayload(src *models.SourceListing, shippingProfileID int64) models.DraftPayload {
	payload := models.DraftPayload{
		Make:              src.Make,
		Model:             src.Model,
		Title:             src.Title,
		Description:       src.Description,
		Finish:            src.Finish,
		Year:              src.Year,
		Handmade:          src.Handmade,
		OffersEnabled:     false,
		ShippingProfileID: shippingProfileID,
		Price: models.DraftPrice{
			Amount:   zeroPrice,
			Currency: DefaultCurrency,
		},
		Photos: photoURLs(src.Photos),
	}

	if src.Price != nil {
		payload.Price.Amount = HalvePrice(string(src.Price.Amount))
		if src.Price.Currency != "" {
			payload.Price.Currency = src.Price.Currency
		}
	}

	// Переносится только первая категория
	if len(src.Categories) > 0 && src.Categories[0].UUID != "" {
		payload.Categories = []models.CategoryRef{{UUID: src.Categories[0].UUID}}
	}

	if src.Condition != nil && src.Condition.UUID != "" {
		payload.Condition = &models.ConditionRef{UUID: src.Condition.UUID}
	}

	return payload
}

// photoURLs выбирает large_crop, затем full; фото без обоих вариантов пропускаются
func photoURLs(photos []models.Photo) []string {
	urls := make([]string, 0, len(photos))
	for _, p := range photos {
		switch {
		case p.Links.LargeCrop != nil && p.Links.LargeCrop.Href != "":
			urls = append(urls, p.Links.LargeCrop.Href)
		case p.Links.Full != nil && p.Links.Full.Href != "":
			urls = append(urls, p.Links.Full.Href)
		}
	}
	return urls
}
