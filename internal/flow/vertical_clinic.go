package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

const clinicMenu = "🏥 *Clínica Salud Plus*\n\n" +
	"¿Qué deseas hacer?\n\n" +
	"1️⃣ Pedir una cita\n" +
	"2️⃣ Revisar estado de mi cita\n" +
	"3️⃣ Ver ubicación de la clínica\n" +
	"4️⃣ Hablar con un asesor\n\n" +
	"Responde con un número.\n" +
	"En cualquier momento puedes escribir *menu*."

func clinicVertical(Assets) *Vertical {
	return &Vertical{
		Name:              VerticalClinic,
		BusinessType:      "clinica",
		Source:            "bot_clinica",
		Banner:            "Chatbot clínica listo 🏥",
		Initial:           "MENU",
		ResetKeywords:     []string{"hola", "cita"},
		ResetClearsFields: true,
		ResetReply:        clinicMenu,
		ExitReply:         "✅ Hemos cerrado la conversación. Escribe *menu* cuando quieras volver 🏥",
		Stages: []Stage{
			{Name: "MENU", Kind: KindPrompt, Prompt: clinicMenu, Next: "WAIT_OPTION"},
			{
				Name:    "WAIT_OPTION",
				Kind:    KindSelect,
				Prompt:  clinicMenu,
				Invalid: "Opción no válida. Escribe *menu* para ver opciones.",
				Choices: []Choice{
					{Keys: []string{"1"}, Next: "ASK_NAME"},
					{Keys: []string{"2"}, Next: "ASK_ID_CITA"},
					{Keys: []string{"3"}, Send: []models.Outbound{
						models.Location(officeLat, officeLng, "Clínica Salud Plus", "Av. Salud 123, Lima"),
					}},
					{Keys: []string{"4"}, Send: []models.Outbound{
						models.Text("Un asesor de la clínica se pondrá en contacto contigo en breve. Puedes dejar tu número o correo."),
					}},
				},
			},
			{
				Name:   "ASK_NAME",
				Kind:   KindCollect,
				Prompt: "Perfecto 🩺 ¿Cuál es tu nombre completo?",
				Field:  "nombre",
				Next:   "ASK_SERVICE",
			},
			{
				Name:   "ASK_SERVICE",
				Kind:   KindCollect,
				Prompt: "¿Para qué especialidad deseas la cita? (ej: cardiología, pediatría, medicina general)",
				Field:  "especialidad",
				Next:   "ASK_DATE",
			},
			{
				Name:   "ASK_DATE",
				Kind:   KindCollect,
				Prompt: "¿Para qué día y rango de hora te gustaría la cita? (ej: 25/11 en la mañana)",
				Field:  "fecha_deseada",
				Next:   "ASK_CONTACT",
			},
			{
				Name:     "ASK_CONTACT",
				Kind:     KindCollect,
				Prompt:   "Por último, ¿a qué número o correo podemos confirmar tu cita?",
				Field:    "contacto",
				Validate: ValidateContact,
				Complete: &Completion{
					Kind:    "cita",
					Fields:  []string{"nombre", "especialidad", "fecha_deseada", "contacto"},
					Roles:   models.Roles{Service: "especialidad"},
					Effects: notify(models.ResourceAppointments, "codigo_cita", "SIN-CODIGO"),
					Reply:   "✅ Hemos registrado tu solicitud de cita. Nuestro equipo te confirmará la disponibilidad y horario exacto.",
				},
			},
			{
				Name:   "ASK_ID_CITA",
				Kind:   KindQuery,
				Prompt: "Por favor, indícame tu DNI o el código de cita que te enviamos.",
				Query: &Query{
					Resource: models.ResourceAppointments,
					Field:    "identificador",
					Found:    "📋 Estado de tu cita:\n\nEstado: {{.estado}}\nFecha: {{.fecha}}\nMédico: {{.medico}}",
					NotFound: "No pudimos encontrar tu cita con ese dato. Un asesor te ayudará a revisar manualmente.",
					Audit:    true,
				},
			},
		},
	}
}
