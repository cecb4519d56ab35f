package gateway

import (
	"fmt"
	"strconv"
)

// PackageShowQuery selects the resources of a package.
func PackageShowQuery(packageID string) string {
	return fmt.Sprintf(`{ result(id: %s) { title resources { datastoreActive id format lastModified total } } }`,
		strconv.Quote(packageID))
}

// NeighbourhoodsQuery selects one page of neighbourhood geometry.
func NeighbourhoodsQuery(resourceID string, page int) string {
	return fmt.Sprintf(`{ result(id: %s, page: %d) { neighbourhoodsRecords { geometry areaId areaName shapeArea } } }`,
		strconv.Quote(resourceID), page)
}

// CasesQuery selects one page of case records.
func CasesQuery(resourceID string, page int) string {
	return fmt.Sprintf(`{ result(id: %s, page: %d) { covidRecords { neighbourhoodName outcome currentlyHospitalized } } }`,
		strconv.Quote(resourceID), page)
}
