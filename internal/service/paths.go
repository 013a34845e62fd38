package service

// Collection layout mirrors the mobile client's document paths:
// restaurants/{id}, restaurants/{id}/menu, users/{uid}/cart, orders.

const (
	usersCollection       = "users"
	restaurantsCollection = "restaurants"
	ordersCollection      = "orders"
)

func cartPath(uid string) string {
	if uid == "" {
		return ""
	}
	return "users/" + uid + "/cart"
}

func menuPath(restaurantID string) string {
	if restaurantID == "" {
		return ""
	}
	return "restaurants/" + restaurantID + "/menu"
}

func notificationsPath(restaurantID string) string {
	if restaurantID == "" {
		return ""
	}
	return "restaurants/" + restaurantID + "/notifications"
}
