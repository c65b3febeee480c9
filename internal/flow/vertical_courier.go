package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

const courierWelcome = "🚚 *Bienvenido a Courier Express*\n\n" +
	"Por favor, envíame tu *código de seguimiento* para revisar el estado de tu envío."

// courierVertical answers a single tracking lookup per conversation.
func courierVertical(Assets) *Vertical {
	return &Vertical{
		Name:              VerticalCourier,
		BusinessType:      "courier",
		Source:            "bot_courier",
		Banner:            "Chatbot courier listo 🚚",
		Initial:           "ASK_CODE",
		ResetKeywords:     []string{"hola", "envío", "envio"},
		ResetClearsFields: true,
		ResetReply:        courierWelcome,
		ExitReply:         "✅ Consulta cancelada. Escribe *hola* cuando quieras revisar otro envío 🚚",
		Stages: []Stage{
			{
				Name:   "ASK_CODE",
				Kind:   KindQuery,
				Prompt: courierWelcome,
				Query: &Query{
					Resource: models.ResourceTracking,
					Field:    "codigo",
					Found: "📦 Estado de tu envío ({{.codigo}}):\n\n" +
						"Estado: {{.estado}}\n" +
						"Última actualización: {{.ultima_actualizacion}}\n" +
						"Ubicación: {{.ubicacion}}",
					NotFound:        "No pudimos encontrar un envío con ese código. Verifica el número o intenta más tarde.",
					PinName:         "Última ubicación registrada",
					PinAddressField: "ubicacion",
					Audit:           true,
				},
			},
		},
	}
}
