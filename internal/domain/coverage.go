package domain

// ProductSet is a set of product IDs.
type ProductSet map[int64]struct{}

// OrderProducts returns the distinct products of the given order lines.
func OrderProducts(items []OrderItem) ProductSet {
	set := make(ProductSet, len(items))
	for _, item := range items {
		set[item.ProductID] = struct{}{}
	}
	return set
}

// AvailableProducts returns the products of a menu that are marked available.
func AvailableProducts(menu []MenuItem) ProductSet {
	set := make(ProductSet, len(menu))
	for _, item := range menu {
		if item.Available {
			set[item.ProductID] = struct{}{}
		}
	}
	return set
}

// IsEligible reports whether every product of the order is in the menu set.
func IsEligible(order, menu ProductSet) bool {
	for id := range order {
		if _, ok := menu[id]; !ok {
			return false
		}
	}
	return true
}
