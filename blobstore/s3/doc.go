// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = coll.Save(ctx, store, "docs.anx", snapshot.DefaultOptions)
//
// Uploads go through the SDK's multipart upload manager. Listing follows
// ListObjectsV2 pagination.
package s3
