// Package mongo implements store.Store on the official MongoDB Go driver.
// It is the default backend and is compatible with collections written by
// earlier deployments: responses keep camelCase fields, an int64 _id holding
// the packed identity, and an ISO-8601 creationTime string.
//
// Either hand the store a database the caller owns:
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	s := mongostore.New(client.Database("default"))
//
// or let it dial and own the client:
//
//	s, _ := mongostore.Open(ctx, uri, "default")
//	defer s.Close()
//	s.Migrate(ctx)
package mongo
