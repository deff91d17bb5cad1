package channels

import (
	"context"
	"errors"
	"net"
	"strings"
)

type deliveryClass int

const (
	deliveryTransient deliveryClass = iota
	deliveryPermanent
)

// classifyDeliveryError splits transport send failures into transient
// conditions worth a later retry and permanent ones. The reason string is
// what gets logged; the error itself never propagates to the event source.
func classifyDeliveryError(err error) (reason string, class deliveryClass) {
	if err == nil {
		return "", deliveryPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "send timeout", deliveryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "network timeout", deliveryTransient
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "temporarily", "unavailable", "too many requests"} {
		if strings.Contains(msg, marker) {
			return "transient transport failure", deliveryTransient
		}
	}
	return "transport rejected message", deliveryPermanent
}
