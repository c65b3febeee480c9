package flow

import "github.com/BTreeMap/LeadPipe/internal/models"

const restaurantMenu = "🍽 *Bienvenido a Restaurante El Sabor*\n\n" +
	"¿Qué deseas hacer hoy?\n\n" +
	"1️⃣ Ver *menú digital*\n" +
	"2️⃣ Hacer un *pedido para delivery*\n" +
	"3️⃣ Reservar una *mesa*\n" +
	"4️⃣ Ver nuestra *ubicación*\n" +
	"5️⃣ Hablar con un asesor humano\n\n" +
	"Responde un número.\n" +
	"Escribe *menu* para volver aquí en cualquier momento."

func restaurantVertical(a Assets) *Vertical {
	return &Vertical{
		Name:              VerticalRestaurant,
		BusinessType:      "restaurante",
		Source:            "bot_restaurante",
		Banner:            "Chatbot restaurante listo 🍽",
		Initial:           "MENU",
		ResetClearsFields: true,
		ResetReply:        restaurantMenu,
		ExitReply:         "✅ Hemos cerrado la conversación. Escribe *menu* cuando quieras volver 🍽",
		Stages: []Stage{
			{Name: "MENU", Kind: KindPrompt, Prompt: restaurantMenu, Next: "WAIT_OPTION"},
			{
				Name:    "WAIT_OPTION",
				Kind:    KindSelect,
				Prompt:  restaurantMenu,
				Invalid: "Opción no válida. Escribe *menu* para ver opciones.",
				Choices: []Choice{
					{Keys: []string{"1"}, Send: []models.Outbound{
						models.Image(a.MenuImageURL, "Nuestra carta 🍽"),
						models.Text("📲 Aquí tienes nuestro menú digital:\n" + a.MenuURL),
					}},
					{Keys: []string{"2"}, Next: "DELIVERY_NAME"},
					{Keys: []string{"3"}, Next: "RESERVA_NAME"},
					{Keys: []string{"4"}, Send: []models.Outbound{
						models.Location(officeLat, officeLng, "Restaurante El Sabor", "Calle 123, Lima"),
					}},
					{Keys: []string{"5"}, Send: []models.Outbound{
						models.Text("👨‍🍳 Un asesor te contactará pronto. Gracias por escribirnos."),
					}},
				},
			},
			{
				Name:   "DELIVERY_NAME",
				Kind:   KindCollect,
				Prompt: "Perfecto 🍕 ¿A nombre de quién será el pedido?",
				Field:  "nombre",
				Next:   "DELIVERY_ORDER",
			},
			{
				Name:   "DELIVERY_ORDER",
				Kind:   KindCollect,
				Prompt: "¿Qué deseas pedir? 🍔🍟🍕",
				Field:  "pedido",
				Next:   "DELIVERY_ADDRESS",
			},
			{
				Name:   "DELIVERY_ADDRESS",
				Kind:   KindCollect,
				Prompt: "Perfecto. ¿Cuál es tu dirección de entrega? 🏠 (calle, número, referencia)",
				Field:  "direccion",
				Complete: &Completion{
					Kind:    "delivery",
					Fields:  []string{"nombre", "pedido", "direccion"},
					Roles:   models.Roles{Service: "pedido"},
					Effects: notify(models.ResourceOrders, "", ""),
					Reply:   "¡Listo! Tu pedido está siendo procesado 🚀\nTe confirmaremos el tiempo de entrega por este medio.",
				},
			},
			{
				Name:   "RESERVA_NAME",
				Kind:   KindCollect,
				Prompt: "Genial 🪑 ¿A nombre de quién será la reserva?",
				Field:  "nombre",
				Next:   "RESERVA_PERSONAS",
			},
			{
				Name:   "RESERVA_PERSONAS",
				Kind:   KindCollect,
				Prompt: "¿Para cuántas personas será la reserva? 👨‍👩‍👧‍👦",
				Field:  "personas",
				Next:   "RESERVA_HORA",
			},
			{
				Name:   "RESERVA_HORA",
				Kind:   KindCollect,
				Prompt: "¿Para qué día y hora deseas reservar? (ejemplo: 24/11 a las 8pm) 📅",
				Field:  "fecha_hora",
				Complete: &Completion{
					Kind:   "reserva",
					Fields: []string{"nombre", "personas", "fecha_hora"},
					Effects: models.EffectSet{
						Persist: true,
						Notify:  true,
					},
					Reply: "¡Reserva registrada! 🪑 Nuestro equipo la confirmará en breve por este mismo chat.",
				},
			},
		},
	}
}
