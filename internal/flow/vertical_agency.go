package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

const agencyName = "*Agencia de Desarrollo – Soluciones Empresariales*"

const agencyWelcome = "👋 ¡Bienvenido a " + agencyName + "!\n\n" +
	"Antes de ayudarte, dime por favor tu *nombre* 🙂"

const agencyGreeting = "👋 ¡Hola! Soy el asistente virtual de " + agencyName + ".\n\n" +
	"Te ayudamos con:\n" +
	"• Desarrollo web y landing pages\n" +
	"• Sistemas empresariales y SaaS multitenant\n" +
	"• Automatización y marketing digital\n\n" +
	"Para comenzar, ¿cómo te llamas? 🙂"

// agencyVertical is the software agency lead qualification flow.
func agencyVertical(Assets) *Vertical {
	return &Vertical{
		Name:              VerticalAgency,
		BusinessType:      "agencia",
		Source:            "bot_agencia_desarrollo",
		Banner:            "WhatsApp Bot funcionando ✅",
		Initial:           "MAIN_MENU",
		ResetClearsFields: true,
		ResetReply: "🔄 Volvimos al inicio.\n\n" +
			"Escribe *hola* cuando quieras comenzar de nuevo 🙂",
		ExitReply: "✅ He cancelado el flujo. Cuando quieras retomar, escribe *hola* o *menu* 🙂",
		Stages: []Stage{
			{
				Name:   "MAIN_MENU",
				Kind:   KindPrompt,
				Prompt: agencyWelcome,
				Variants: []Variant{{
					Keywords: []string{"hola", "buenas", "buenos días", "buenas tardes", "buenas noches"},
					Text:     agencyGreeting,
				}},
				Next: "ASK_NAME",
			},
			{
				Name:   "ASK_NAME",
				Kind:   KindCollect,
				Prompt: agencyWelcome,
				Field:  "nombre",
				Next:   "ASK_SERVICE",
			},
			{
				Name: "ASK_SERVICE",
				Kind: KindCollect,
				Prompt: "¡Gracias, *{{.nombre}}*! 👌\n\n" +
					"Cuéntame, ¿qué te interesa más?\n\n" +
					"1️⃣ Crear o mejorar una *página web / landing*.\n" +
					"2️⃣ Desarrollar un *sistema a medida* o *SaaS multitenant*.\n" +
					"3️⃣ *Automatizar procesos* y conectar sistemas (APIs, integraciones).\n" +
					"4️⃣ *Marketing digital* y presencia online.\n\n" +
					"Responde con el *número* de la opción o descríbelo con tus palabras.",
				Field: "servicio",
				Canned: map[string]string{
					"1": "Página web / landing enfocada en ventas y presencia profesional.",
					"2": "Sistema a medida o SaaS multitenant para gestionar procesos de tu empresa.",
					"3": "Automatización de procesos e integraciones entre tus sistemas (APIs, bots, etc.).",
					"4": "Estrategia de marketing digital y presencia online para atraer más clientes.",
				},
				Next: "ASK_BUSINESS",
			},
			{
				Name: "ASK_BUSINESS",
				Kind: KindCollect,
				Prompt: "Perfecto, trabajamos mucho en ese tipo de proyectos 💼\n\n" +
					"📌 Interés: *{{.servicio}}*\n\n" +
					"Ahora, cuéntame un poco de tu negocio:\n" +
					"¿En qué rubro estás y en qué país trabajas principalmente?",
				Field: "negocio",
				Next:  "ASK_BUDGET",
			},
			{
				Name: "ASK_BUDGET",
				Kind: KindCollect,
				Prompt: "Genial, gracias por el contexto 🙌\n\n" +
					"Para proponerte algo realista, ¿en qué rango aproximado está tu *presupuesto* para este proyecto?\n\n" +
					"Por ejemplo:\n" +
					"• *Bajo:* quiero algo inicial, mínimo viable\n" +
					"• *Medio:* busco algo sólido y escalable\n" +
					"• *Alto:* quiero una solución completa, lista para crecer\n\n" +
					"Puedes responder con el rango o con un monto aproximado.",
				Field: "presupuesto",
				Next:  "ASK_CONTACT",
			},
			{
				Name: "ASK_CONTACT",
				Kind: KindCollect,
				Prompt: "Perfecto, con eso ya puedo dimensionar el tipo de solución 💡\n\n" +
					"Por último, ¿a qué *correo* o *WhatsApp* podemos enviarte una propuesta / agendar una reunión breve?\n\n" +
					"Ejemplo: *correo@empresa.com* o *+51 999 999 999*",
				Field:    "contacto",
				Validate: ValidateContact,
				Complete: &Completion{
					Kind:    "lead",
					Fields:  []string{"nombre", "servicio", "negocio", "presupuesto", "contacto"},
					Roles:   models.Roles{Service: "servicio", Business: "negocio", Budget: "presupuesto"},
					Effects: notify("", "", ""),
					Reply: "🧾 *Resumen de tu solicitud:*\n\n" +
						"• Nombre: *{{.nombre}}*\n" +
						"• Interés: *{{.servicio}}*\n" +
						"• Negocio: *{{.negocio}}*\n" +
						"• Presupuesto: *{{.presupuesto}}*\n" +
						"• Contacto: *{{.contacto}}*\n\n" +
						"✅ ¡Listo! Con esa info podemos prepararte una propuesta a medida.\n\n" +
						"Un especialista de " + agencyName + " te contactará en las próximas horas para comentarte opciones claras y tiempos.\n\n" +
						"Si quieres seguir hablando por aquí, en cualquier momento puedes escribir *menu* para ver de nuevo las opciones. 😊",
				},
			},
		},
	}
}
