package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

const realEstateMenu = "🏢 *Bienvenido a Inmobiliaria Premium*\n\n" +
	"¿En qué podemos ayudarte hoy?\n\n" +
	"1️⃣ Información de proyectos\n" +
	"2️⃣ Recibir brochure en PDF\n" +
	"3️⃣ Agendar visita a sala de ventas\n" +
	"4️⃣ Hablar con un asesor\n\n" +
	"Responde con un número."

func realEstateVertical(a Assets) *Vertical {
	return &Vertical{
		Name:              VerticalRealEstate,
		BusinessType:      "inmobiliaria",
		Source:            "bot_inmobiliaria",
		Banner:            "Chatbot inmobiliaria listo 🏢",
		Initial:           "MENU",
		ResetKeywords:     []string{"hola", "proyecto"},
		ResetClearsFields: true,
		ResetReply:        realEstateMenu,
		ExitReply:         "✅ Hemos cerrado la conversación. Escribe *menu* cuando quieras volver 🏢",
		Stages: []Stage{
			{Name: "MENU", Kind: KindPrompt, Prompt: realEstateMenu, Next: "WAIT_OPTION"},
			{
				Name:    "WAIT_OPTION",
				Kind:    KindSelect,
				Prompt:  realEstateMenu,
				Invalid: "Opción no válida. Escribe *menu* para ver el menú.",
				Choices: []Choice{
					{Keys: []string{"1"}, Next: "ASK_PROJECT"},
					{Keys: []string{"2"}, Send: []models.Outbound{
						models.Document(a.ProjectsBrochureURL, "Brochure general de proyectos inmobiliarios", "brochure-proyectos.pdf"),
						models.Text("📄 Te envié el brochure en PDF. Si quieres una propuesta personalizada, escribe *visita*."),
					}},
					{Keys: []string{"3", "visita"}, Next: "ASK_NAME"},
					{Keys: []string{"4"}, Send: []models.Outbound{
						models.Text("👩‍💼 Un asesor comercial se pondrá en contacto contigo pronto. Si gustas, comparte tu correo o teléfono."),
					}},
				},
			},
			{
				Name: "ASK_PROJECT",
				Kind: KindCollect,
				Prompt: "¿Sobre qué tipo de proyecto te interesa saber?\n\n" +
					"a) Departamentos\nb) Oficinas\nc) Terrenos\n\n" +
					"Responde con *a*, *b* o *c*.",
				Field: "proyecto_tipo",
				Canned: map[string]string{
					"a": "Departamentos",
					"b": "Oficinas",
					"c": "Terrenos",
				},
				Next: "ASK_BUDGET",
			},
			{
				Name:   "ASK_BUDGET",
				Kind:   KindCollect,
				Prompt: "¿Cuál es tu rango de presupuesto aproximado? (ej: 80,000 - 120,000 USD)",
				Field:  "presupuesto",
				Next:   "ASK_CONTACT",
			},
			{
				Name:     "ASK_CONTACT",
				Kind:     KindCollect,
				Prompt:   "Perfecto. ¿A qué correo o número podemos enviarte información detallada y opciones?",
				Field:    "contacto",
				Validate: ValidateContact,
				Complete: &Completion{
					Kind:    "proyecto",
					Fields:  []string{"nombre", "proyecto_tipo", "presupuesto", "contacto"},
					Roles:   models.Roles{Service: "proyecto_tipo", Budget: "presupuesto"},
					Effects: notify(models.ResourceLeads, "", ""),
					Reply:   "¡Gracias! Hemos registrado tu interés y un asesor te enviará información detallada del proyecto. 🏢",
				},
			},
			{
				Name:   "ASK_NAME",
				Kind:   KindCollect,
				Prompt: "Perfecto 🗓 ¿Cuál es tu nombre completo para la visita?",
				Field:  "nombre",
				Next:   "ASK_VISIT_DATETIME",
			},
			{
				Name:   "ASK_VISIT_DATETIME",
				Kind:   KindCollect,
				Prompt: "¿Para qué día y hora aproximada deseas la visita? (ej: 25/11 a las 4pm)",
				Field:  "visita_fecha_hora",
				Complete: &Completion{
					Kind:    "visita",
					Fields:  []string{"nombre", "visita_fecha_hora"},
					Effects: notify(models.ResourceLeads, "", ""),
					Reply:   "¡Visita registrada! Nuestro equipo confirmará la cita contigo. 🏢",
				},
			},
		},
	}
}
