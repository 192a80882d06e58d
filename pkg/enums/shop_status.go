package enums

// ShopStatus tracks a shop through the registration approval flow. A shop can
// only receive orders once the registration fee has settled and the shop is
// approved.
type ShopStatus string

const (
	ShopStatusPending  ShopStatus = "pending"
	ShopStatusApproved ShopStatus = "approved"
)

var validShopStatuses = []ShopStatus{
	ShopStatusPending,
	ShopStatusApproved,
}

// String implements fmt.Stringer.
func (s ShopStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShopStatus.
func (s ShopStatus) IsValid() bool {
	for _, candidate := range validShopStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
