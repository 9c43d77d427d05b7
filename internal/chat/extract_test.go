package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/underla/helpdesk/internal/domain"
)

func TestExtractInfoEmail(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"plain", "mi correo es ana@example.com", "ana@example.com"},
		{"uppercase lowered", "ANA.GARCIA@EXAMPLE.COM", "ana.garcia@example.com"},
		{"with dots and dashes", "escribe a juan.perez-2@mail.example.org gracias", "juan.perez-2@mail.example.org"},
		{"no email", "no tengo correo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractInfo(tt.message, domain.CollectedInfo{})
			assert.Equal(t, tt.want, got.Email)
		})
	}
}

func TestExtractInfoPhone(t *testing.T) {
	tests := []struct {
		name    string
		message string
		found   bool
	}{
		{"international", "+34 612 345 678", true},
		{"plain digits", "mi número es 5512345678", true},
		{"with dashes", "llámame al 55-1234-5678", true},
		{"too short", "somos 3 personas en 2 equipos", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractInfo(tt.message, domain.CollectedInfo{})
			if tt.found {
				assert.NotEmpty(t, got.Phone)
			} else {
				assert.Empty(t, got.Phone)
			}
		})
	}
}

func TestExtractInfoName(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"me llamo", "Hola, me llamo Ana García", "Ana García"},
		{"soy", "soy Pedro", "Pedro"},
		{"mi nombre es", "mi nombre es María López y necesito ayuda", "María López"},
		{"bare name", "Ana", "Ana"},
		{"bare full name", "Ana García", "Ana García"},
		{"sentence is not a name", "necesito ayuda con mi factura", ""},
		{"lowercase bare word", "hola", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractInfo(tt.message, domain.CollectedInfo{})
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestExtractInfoKeepsExistingName(t *testing.T) {
	prior := domain.CollectedInfo{Name: "Ana"}
	got := ExtractInfo("soy Pedro", prior)
	assert.Equal(t, "Ana", got.Name)
}

func TestExtractInfoPreservesPriorFields(t *testing.T) {
	prior := domain.CollectedInfo{Name: "Ana", Email: "ana@example.com"}
	got := ExtractInfo("mi teléfono es 5512345678", prior)

	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.NotEmpty(t, got.Phone)
}

func TestCaptureReason(t *testing.T) {
	tests := []struct {
		name    string
		message string
		prior   domain.CollectedInfo
		want    string
	}{
		{"explanation", "no puedo acceder a mi cuenta desde ayer", domain.CollectedInfo{}, "no puedo acceder a mi cuenta desde ayer"},
		{"keeps existing reason", "otro problema distinto", domain.CollectedInfo{Reason: "factura duplicada"}, "factura duplicada"},
		{"too short", "hola", domain.CollectedInfo{}, ""},
		{"contains email", "mi correo es ana@example.com", domain.CollectedInfo{}, ""},
		{"bare name is not a reason", "Ana García", domain.CollectedInfo{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := captureReason(tt.message, tt.prior)
			assert.Equal(t, tt.want, got.Reason)
		})
	}
}
