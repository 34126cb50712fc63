// Package kmeans implements Lloyd's k-means iteration used to train the
// centroids of the clustering index.
package kmeans
