// Package api provides clients for the storefront's managed backend.
//
// The catalog data service is a managed GraphQL API reached over HTTPS:
//   - Queries: getMarket, searchMarkets, getUser
//   - Mutations: createMarket, createProduct, createOrder, registerUser
//   - Subscriptions: onCreateProduct, onUpdateProduct, onDeleteProduct
//     (documents live here, transport lives in internal/connection)
//
// The remote charge endpoint is a single POST {chargeURL}/charge.
//
// No request is retried automatically. Callers classify failures with
// KindOf and surface RemoteMessage to the user.
package api
