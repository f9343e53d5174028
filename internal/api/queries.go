package api

const productFields = `
    id
    description
    price
    shipped
    owner
    createdAt
    file {
      key
      bucket
      region
    }
    market {
      id
    }`

const getMarketQuery = `query GetMarket($id: ID!, $limit: Int) {
  getMarket(id: $id) {
    id
    name
    tags
    owner
    createdAt
    products(sortDirection: DESC, limit: $limit) {
      items {` + productFields + `
      }
      nextToken
    }
  }
}`

const searchMarketsQuery = `query SearchMarkets($filter: SearchableMarketFilterInput, $sort: SearchableMarketSortInput, $limit: Int) {
  searchMarkets(filter: $filter, sort: $sort, limit: $limit) {
    items {
      id
      name
      tags
      owner
      createdAt
    }
    nextToken
  }
}`

const createMarketMutation = `mutation CreateMarket($input: CreateMarketInput!) {
  createMarket(input: $input) {
    id
    name
    tags
    owner
    createdAt
  }
}`

const createProductMutation = `mutation CreateProduct($input: CreateProductInput!) {
  createProduct(input: $input) {` + productFields + `
  }
}`

const createOrderMutation = `mutation CreateOrder($input: CreateOrderInput!) {
  createOrder(input: $input) {
    id
    createdAt
    user {
      id
    }
    product {` + productFields + `
    }
    shippingAddress {
      city
      country
      address_line1
      address_line2
      address_state
      address_zip
    }
  }
}`

const getUserQuery = `query GetUser($id: ID!, $limit: Int) {
  getUser(id: $id) {
    id
    username
    email
    registered
    orders(sortDirection: DESC, limit: $limit) {
      items {
        id
        createdAt
        product {
          id
          description
          price
          owner
          createdAt
        }
        shippingAddress {
          city
          country
          address_line1
          address_line2
          address_state
          address_zip
        }
      }
      nextToken
    }
  }
}`

const registerUserMutation = `mutation RegisterUser($input: CreateUserInput!) {
  registerUser(input: $input) {
    id
    username
    email
    registered
  }
}`

// Subscription fields as they appear under the data payload.
const (
	FieldOnCreateProduct = "onCreateProduct"
	FieldOnUpdateProduct = "onUpdateProduct"
	FieldOnDeleteProduct = "onDeleteProduct"
)

// OnCreateProduct is the subscription document for created products.
const OnCreateProduct = `subscription OnCreateProduct {
  onCreateProduct {` + productFields + `
  }
}`

// OnUpdateProduct is the subscription document for updated products.
const OnUpdateProduct = `subscription OnUpdateProduct {
  onUpdateProduct {` + productFields + `
  }
}`

// OnDeleteProduct is the subscription document for deleted products.
const OnDeleteProduct = `subscription OnDeleteProduct {
  onDeleteProduct {` + productFields + `
  }
}`
