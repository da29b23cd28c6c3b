package orders

type Status string

const (
	StatusProcessing Status = "Processing"
	StatusConfirmed  Status = "Confirmed"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// validNext: the reconciler drives Processing->Confirmed, the customer
// drives Processing->Cancelled. Shipped/Delivered belong to the admin
// fulfillment workflow.
var validNext = map[Status]map[Status]bool{
	StatusProcessing: {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusShipped: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
