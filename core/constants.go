package core

// Environment Variables
const (
	EnvRedisURL     = "REDIS_URL"                   // Redis connection URL for remote and local stores
	EnvOTELEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT" // OTLP collector endpoint
	EnvPort         = "PORT"                        // HTTP server port
)

// Local storage keys. They are shared by every component running against the
// same device-local store, so changing one orphans existing data.
const (
	KeyCatalogView      = "catalog_products_view"
	KeyCatalogViewAt    = "catalog_products_view_at"
	KeyCart             = "catalog_cart"
	KeyCartUpdatedAt    = "catalog_cart_updated_at"
	KeyPendingOrders    = "checkout_pending"
	KeyLastOrderID      = "checkout_last_order_id"
	KeyOrderHistory     = "checkout_order_history"
	KeyCustomerName     = "customer_name"
	KeyCustomerPhone    = "customer_phone"
	KeyCustomerStreet   = "customer_street"
	KeyCustomerNumber   = "customer_number"
	KeyCustomerDistrict = "customer_district"
	KeyPaymentMethodID  = "payment_method_id"
	KeyOrderAckPrefix   = "order_ack:"
)

// Remote document paths
const (
	DefaultKeysDocument     = "data/keys"
	DefaultProductsField    = "produtos"
	DefaultPaymentField     = "paymentOptions"
	DefaultOrdersCollection = "orders"
)

// Redis DB allocation for the storefront
const (
	RedisDBDocuments    = 0 // remote document store emulation
	RedisDBLocalStorage = 1 // device-local storage when Redis backs it
)

// GetRedisDBName returns a human readable name for a storefront Redis DB
func GetRedisDBName(db int) string {
	switch db {
	case RedisDBDocuments:
		return "documents"
	case RedisDBLocalStorage:
		return "local-storage"
	default:
		return "unassigned"
	}
}
