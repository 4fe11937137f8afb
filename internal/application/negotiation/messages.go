package negotiation

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// statusMessage is the human-readable line used for the system chat message
// and the status_updated event.
func statusMessage(req *servicerequest.ServiceRequest) string {
	switch req.Status {
	case servicerequest.StatusAccepted:
		if req.AcceptedPrice != nil {
			return fmt.Sprintf("Price of %s accepted", servicerequest.FormatPrice(*req.AcceptedPrice))
		}
		return "Price accepted"
	case servicerequest.StatusInProgress:
		return "The move is in progress"
	case servicerequest.StatusCompleted:
		return "The move is completed"
	case servicerequest.StatusCancelled:
		by := "a participant"
		if req.CancelledBy != nil {
			by = "the " + string(*req.CancelledBy)
		}
		if req.CancelReason != nil {
			return fmt.Sprintf("Request cancelled by %s: %s", by, *req.CancelReason)
		}
		return fmt.Sprintf("Request cancelled by %s", by)
	default:
		return fmt.Sprintf("Status changed to %s", req.Status)
	}
}

func priceNumber(d decimal.Decimal) json.Number {
	return json.Number(servicerequest.FormatPrice(d))
}
