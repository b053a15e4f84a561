package domain

import "time"

// TimelineEvent описывает событие в истории заказа: смену статуса,
// движение леджера или пометку о ручной сверке.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
