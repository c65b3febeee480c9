package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

// Office pin shared by the generic, courier and restaurant flows.
const (
	officeLat = -12.046374
	officeLng = -77.042793
)

const genericMenu = "👋 ¡Hola! Soy el asistente virtual.\n\n" +
	"¿Qué te gustaría hacer hoy?\n\n" +
	"1️⃣ Ver catálogo de productos/servicios\n" +
	"2️⃣ Descargar brochure en PDF\n" +
	"3️⃣ Ver ubicación de la tienda/oficina\n" +
	"4️⃣ Hablar con un asesor\n\n" +
	"Responde con el *número* de la opción.\n" +
	"En cualquier momento puedes escribir *menu* para volver aquí."

// genericVertical is the catalog/brochure/location menu. Its reset keeps
// collected fields and only rewinds the stage.
func genericVertical(a Assets) *Vertical {
	return &Vertical{
		Name:              VerticalGeneric,
		BusinessType:      "generico",
		Source:            "bot_generico",
		Banner:            "Chatbot genérico WhatsApp listo 🚀",
		Initial:           "MAIN_MENU",
		ResetClearsFields: false,
		ResetReply:        genericMenu,
		ExitReply:         "✅ Hemos cerrado la conversación. Cuando quieras retomar, escribe *hola* o *menu* 🙂",
		Stages: []Stage{
			{
				Name:   "MAIN_MENU",
				Kind:   KindPrompt,
				Prompt: genericMenu,
				Next:   "AWAIT_OPTION",
			},
			{
				Name:    "AWAIT_OPTION",
				Kind:    KindSelect,
				Prompt:  genericMenu,
				Invalid: "No reconocí esa opción 🧐. Escribe *menu* para ver el menú de nuevo.",
				Choices: []Choice{
					{Keys: []string{"1"}, Send: []models.Outbound{
						models.Text("📦 Aquí puedes ver nuestro catálogo completo: " + a.CatalogURL),
						models.Text("¿Quieres ver algo más? Escribe *menu* para volver al inicio."),
					}},
					{Keys: []string{"2"}, Send: []models.Outbound{
						models.Document(a.BrochureURL, "Brochure de servicios", "brochure-servicios.pdf"),
						models.Text("📄 Te he enviado nuestro brochure en PDF. ¿Te ayudo con algo más? Escribe *menu* para volver."),
					}},
					{Keys: []string{"3"}, Send: []models.Outbound{
						models.Location(officeLat, officeLng, "Nuestra oficina principal", "Estamos aquí. Puedes visitarnos con previa cita."),
						models.Text("📍 Te he compartido nuestra ubicación. Si necesitas ayuda adicional, escribe *menu*."),
					}},
					{Keys: []string{"4"}, Next: "ASK_REQUEST"},
				},
			},
			{
				Name: "ASK_REQUEST",
				Kind: KindCollect,
				Prompt: "👨‍💼 Te voy a derivar con un asesor humano.\n" +
					"Por favor, dime brevemente qué necesitas.\n\n" +
					"También puedes escribir *salir* para cerrar.",
				Field: "solicitud",
				Next:  "ASK_CONTACT",
			},
			{
				Name:     "ASK_CONTACT",
				Kind:     KindCollect,
				Prompt:   "Perfecto. ¿A qué número o correo puede contactarte el asesor?",
				Field:    "contacto",
				Validate: ValidateContact,
				Complete: &Completion{
					Kind:    "asesor",
					Fields:  []string{"solicitud", "contacto"},
					Roles:   models.Roles{Service: "solicitud"},
					Effects: notify("", "", ""),
					Reply:   "✅ ¡Gracias! Un asesor te escribirá muy pronto. Escribe *menu* si necesitas algo más.",
				},
			},
		},
	}
}
