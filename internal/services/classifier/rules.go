package classifier

import (
	"strings"

	"github.com/BearBump/ShipSync/internal/models"
)

// Коды статусов: CDEK order states, коды эмулятора и ручное создание (MANUAL).
var codeTable = map[string]models.StatusCategory{
	"CREATED": models.StatusCreated,
	"MANUAL":  models.StatusCreated,
	"NEW":     models.StatusCreated,

	"PENDING_REGISTRATION":  models.StatusPendingRegistration,
	"AWAITING_REGISTRATION": models.StatusPendingRegistration,
	"NOT_REGISTERED":        models.StatusPendingRegistration,

	"ACCEPTED":                        models.StatusAccepted,
	"RECEIVED_AT_SHIPMENT_WAREHOUSE":  models.StatusAccepted,
	"READY_TO_SHIP_AT_SENDING_OFFICE": models.StatusAccepted,

	"IN_TRANSIT":                             models.StatusInTransit,
	"TAKEN_BY_TRANSPORTER_FROM_SENDER_CITY":  models.StatusInTransit,
	"SENT_TO_TRANSIT_CITY":                   models.StatusInTransit,
	"ACCEPTED_IN_TRANSIT_CITY":               models.StatusInTransit,
	"ACCEPTED_AT_TRANSIT_WAREHOUSE":          models.StatusInTransit,
	"READY_TO_SHIP_IN_TRANSIT_OFFICE":        models.StatusInTransit,
	"TAKEN_BY_TRANSPORTER_FROM_TRANSIT_CITY": models.StatusInTransit,
	"SENT_TO_RECIPIENT_CITY":                 models.StatusInTransit,
	"ACCEPTED_IN_RECIPIENT_CITY":             models.StatusInTransit,
	"TAKEN_BY_COURIER":                       models.StatusInTransit,

	"READY_FOR_PICKUP":          models.StatusReadyForPickup,
	"ACCEPTED_AT_PICK_UP_POINT": models.StatusReadyForPickup,
	"POSTOMAT_POSTED":           models.StatusReadyForPickup,

	"DELIVERED":         models.StatusDelivered,
	"POSTOMAT_RECEIVED": models.StatusDelivered,
}

type keywordGroup struct {
	category models.StatusCategory
	phrases  [][]string
}

// Order matters: the first group with a matching phrase wins. A phrase does not
// match where it is negated ("не вручено", "not delivered"), see negated.
var keywordGroups = []keywordGroup{
	{models.StatusDelivered, phrases(
		"вручено", "вручен", "вручена", "вручение адресату",
		"получено адресатом", "доставлено получателю", "выдано получателю", "выдан получателю",
		"delivered", "handed to recipient", "received by recipient",
	)},
	{models.StatusReadyForPickup, phrases(
		"пункте выдачи", "пункт выдачи", "пвз", "постамат", "постамате",
		"готов к выдаче", "ожидает получения", "ожидает вручения", "место вручения",
		"ready for pickup", "awaiting pickup", "pickup point",
	)},
	{models.StatusInTransit, phrases(
		"в пути", "транзит", "отправлено", "отправлен", "покинуло", "сортировочный центр",
		"сортировка", "передано в доставку", "in transit", "departed", "arrived at hub",
	)},
	{models.StatusPendingRegistration, phrases(
		"ожидает регистрации", "awaiting registration", "pending registration",
		"не зарегистрирован", "не зарегистрировано", "не зарегистрирована",
		"not registered", "not yet registered",
	)},
	{models.StatusCreated, phrases(
		"создано", "создан", "создана", "зарегистрирован", "зарегистрировано", "оформлен",
		"created", "registered",
	)},
	{models.StatusAccepted, phrases(
		"принят", "принято", "принята", "прием", "accepted", "received from sender",
	)},
}

func phrases(ss ...string) [][]string {
	out := make([][]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, strings.Fields(s))
	}
	return out
}

// Отрицание: "не"/"not" прямо перед фразой или через одно слово ("not yet", "не был").
var (
	negators = map[string]struct{}{"не": {}, "нет": {}, "not": {}, "no": {}, "never": {}}
	fillers  = map[string]struct{}{"еще": {}, "был": {}, "была": {}, "было": {}, "были": {}, "yet": {}, "been": {}, "be": {}}
)
