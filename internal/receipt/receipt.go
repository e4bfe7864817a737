package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
)

// Format is an output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value onto a Format; empty means JSON
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unsupported receipt format %q", s)
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Receipt is the printable view of a booking
type Receipt struct {
	Number    string               `json:"receiptNumber"`
	BookingID string               `json:"bookingId"`
	Status    models.BookingStatus `json:"status"`
	UserName  string               `json:"userName"`
	UserEmail string               `json:"userEmail"`
	Date      string               `json:"date"`
	StartTime string               `json:"startTime"`
	EndTime   string               `json:"endTime"`
	Timezone  string               `json:"timezone"`
	Note      string               `json:"note,omitempty"`
	BookedAt  time.Time            `json:"bookedAt"`
	IssuedAt  time.Time            `json:"issuedAt"`
}

// receiptNamespace derives stable receipt numbers from booking ids
var receiptNamespace = uuid.MustParse("6f1c1f7e-3b0a-4c39-9a57-0c3f8d1b2e44")

// Number returns the receipt number of a booking. It is stable across reprints.
func Number(bookingID string) string {
	id := uuid.NewSHA1(receiptNamespace, []byte(bookingID))
	return "R-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}

// New builds the receipt of b with times shown in loc
func New(b *models.Booking, loc *time.Location, issuedAt time.Time) *Receipt {
	if loc == nil {
		loc = time.UTC
	}
	r := &Receipt{
		Number:    Number(b.ID),
		BookingID: b.ID,
		Status:    b.Status,
		UserName:  b.UserName,
		UserEmail: b.UserEmail,
		Timezone:  loc.String(),
		Note:      b.Note,
		BookedAt:  b.CreatedAt,
		IssuedAt:  issuedAt.UTC(),
	}
	if b.Slot != nil {
		start := b.Slot.StartAt.In(loc)
		r.Date = start.Format("2006-01-02")
		r.StartTime = start.Format("15:04")
		r.EndTime = b.Slot.EndAt.In(loc).Format("15:04")
	}
	return r
}

var statusLabels = map[models.BookingStatus]string{
	models.StatusPending:   "قيد الانتظار",
	models.StatusConfirmed: "مؤكد",
	models.StatusCancelled: "ملغى",
}

var htmlTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"status": func(s models.BookingStatus) string {
		if l, ok := statusLabels[s]; ok {
			return l
		}
		return string(s)
	},
}).Parse(`<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
<meta charset="utf-8">
<title>إيصال حجز {{.Number}}</title>
<style>
body{font-family:Tahoma,Arial,sans-serif;margin:2rem;color:#222}
h1{font-size:1.4rem;border-bottom:2px solid #0a6;padding-bottom:.5rem}
table{border-collapse:collapse;width:100%;max-width:36rem}
th,td{text-align:right;padding:.4rem .6rem;border-bottom:1px solid #ddd}
th{width:10rem;color:#555}
.status-cancelled{color:#b00}
</style>
</head>
<body>
<h1>إيصال حجز موعد</h1>
<table>
<tr><th>رقم الإيصال</th><td>{{.Number}}</td></tr>
<tr><th>رقم الحجز</th><td dir="ltr">{{.BookingID}}</td></tr>
<tr><th>الاسم</th><td>{{.UserName}}</td></tr>
<tr><th>البريد الإلكتروني</th><td dir="ltr">{{.UserEmail}}</td></tr>
<tr><th>التاريخ</th><td dir="ltr">{{.Date}}</td></tr>
<tr><th>الوقت</th><td dir="ltr">{{.StartTime}} - {{.EndTime}} ({{.Timezone}})</td></tr>
<tr><th>الحالة</th><td class="status-{{.Status}}">{{status .Status}}</td></tr>
{{- if .Note}}
<tr><th>ملاحظة</th><td>{{.Note}}</td></tr>
{{- end}}
<tr><th>تاريخ الإصدار</th><td dir="ltr">{{.IssuedAt.Format "2006-01-02 15:04 MST"}}</td></tr>
</table>
</body>
</html>
`))

// Render encodes r in format f
func Render(f Format, r *Receipt) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(r)
	case FormatHTML:
		var buf bytes.Buffer
		if err := htmlTemplate.Execute(&buf, r); err != nil {
			return nil, fmt.Errorf("render receipt: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported receipt format %q", f)
}
