// Package view holds the seams between the storefront core and whatever
// presents it: user notices, navigation, reload and confirmation ports, and
// a teardown Scope that suppresses callbacks after a screen goes away.
package view
