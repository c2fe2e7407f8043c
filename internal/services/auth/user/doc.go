// Package user defines the auth user model and the username policy.
//
// Usernames are normalized into a collision-resistant canonical form before
// uniqueness checks so visually-confusable variants map to the same identity.
package user
