package core

// Filter returns the records matching spec, in their original order. The
// input slice is never modified, so concurrent calls over the same records
// are safe.
func Filter(records []Record, spec FilterSpec) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if spec.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Options returns the distinct departments and products in order of first
// appearance. They populate the filter controls.
func Options(records []Record) (departments, products []string) {
	seenDept := make(map[string]struct{})
	seenProd := make(map[string]struct{})
	departments = make([]string, 0)
	products = make([]string, 0)
	for _, r := range records {
		if _, ok := seenDept[r.Department]; !ok {
			seenDept[r.Department] = struct{}{}
			departments = append(departments, r.Department)
		}
		if _, ok := seenProd[r.Product]; !ok {
			seenProd[r.Product] = struct{}{}
			products = append(products, r.Product)
		}
	}
	return departments, products
}
