package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Resource is one file or datastore table of a package.
type Resource struct {
	DatastoreActive bool   `json:"datastoreActive"`
	ID              string `json:"id"`
	Format          string `json:"format"`
	LastModified    string `json:"lastModified"`
	Total           int    `json:"total"`
}

// Package is the package-show result.
type Package struct {
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// ActiveResource returns the first resource backed by a queryable datastore.
func (p Package) ActiveResource() (Resource, bool) {
	for _, r := range p.Resources {
		if r.DatastoreActive {
			return r, true
		}
	}
	return Resource{}, false
}

type wireResource struct {
	DatastoreActive *bool   `json:"datastoreActive"`
	ID              *string `json:"id"`
	Format          *string `json:"format"`
	LastModified    *string `json:"lastModified"`
	Total           *int    `json:"total"`
}

type wirePackage struct {
	Title     *string         `json:"title"`
	Resources *[]wireResource `json:"resources"`
}

// PackageShow runs the metadata query for packageID.
func (c *Client) PackageShow(ctx context.Context, packageID string) (Package, error) {
	body, err := c.postQuery(ctx, PathPackageShow, PackageShowQuery(packageID))
	if err != nil {
		return Package{}, err
	}
	raw, err := decodeResult(PathPackageShow, body)
	if err != nil {
		return Package{}, err
	}
	var wire wirePackage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Package{}, &ParseError{Endpoint: PathPackageShow, Field: "result", Err: err}
	}
	return validatePackage(wire)
}

func validatePackage(wire wirePackage) (Package, error) {
	if wire.Resources == nil {
		return Package{}, missing(PathPackageShow, "result.resources")
	}
	pkg := Package{Resources: make([]Resource, 0, len(*wire.Resources))}
	if wire.Title != nil {
		pkg.Title = *wire.Title
	}
	for i, w := range *wire.Resources {
		field := fmt.Sprintf("result.resources[%d]", i)
		if w.DatastoreActive == nil {
			return Package{}, missing(PathPackageShow, field+".datastoreActive")
		}
		if w.ID == nil || *w.ID == "" {
			return Package{}, missing(PathPackageShow, field+".id")
		}
		r := Resource{DatastoreActive: *w.DatastoreActive, ID: *w.ID}
		if w.Format != nil {
			r.Format = *w.Format
		}
		if w.LastModified != nil {
			r.LastModified = *w.LastModified
		}
		// Inactive resources have no row count.
		if r.DatastoreActive {
			if w.Total == nil {
				return Package{}, missing(PathPackageShow, field+".total")
			}
			if *w.Total < 0 {
				return Package{}, &ParseError{Endpoint: PathPackageShow, Field: field + ".total", Err: fmt.Errorf("negative total %d", *w.Total)}
			}
			r.Total = *w.Total
		}
		pkg.Resources = append(pkg.Resources, r)
	}
	return pkg, nil
}
