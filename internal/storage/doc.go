// Package storage uploads product images to the object store.
//
// Uploads go through the S3 upload manager, signed with the credentials
// of the signed-in user's storage identity. Keys are namespaced by
// visibility and identity so a user can only write under their own prefix.
package storage
