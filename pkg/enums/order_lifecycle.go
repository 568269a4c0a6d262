package enums

// OrderLifecycle separates live orders from soft-deleted ones.
type OrderLifecycle string

const (
	OrderLifecycleActive  OrderLifecycle = "active"
	OrderLifecycleDeleted OrderLifecycle = "deleted"
)

func (l OrderLifecycle) String() string {
	return string(l)
}

func (l OrderLifecycle) IsValid() bool {
	return l == OrderLifecycleActive || l == OrderLifecycleDeleted
}
