package enums

import "fmt"

// PaymentSubject names what a payment record settles. The subject reference is
// carried inside the gateway intent so notifications can be resolved without
// guessing from record ordering.
type PaymentSubject string

const (
	PaymentSubjectOrder            PaymentSubject = "order"
	PaymentSubjectShopRegistration PaymentSubject = "shop_registration"
)

var validPaymentSubjects = []PaymentSubject{
	PaymentSubjectOrder,
	PaymentSubjectShopRegistration,
}

// String implements fmt.Stringer.
func (p PaymentSubject) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSubject.
func (p PaymentSubject) IsValid() bool {
	for _, candidate := range validPaymentSubjects {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSubject converts raw input into a PaymentSubject.
func ParsePaymentSubject(value string) (PaymentSubject, error) {
	for _, candidate := range validPaymentSubjects {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment subject %q", value)
}
