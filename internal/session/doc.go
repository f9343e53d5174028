// Package session keeps the signed-in identity for the rest of the
// storefront. It follows auth events on the process bus, refreshes the
// identity on sign-in and makes sure the backend knows about the user.
package session
