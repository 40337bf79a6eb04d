package lbassoc

// AssociationMap maps instance ids of one region to load balancer names.
// It is built per region and discarded after annotation.
type AssociationMap struct {
	v1 map[string][]string
	v2 map[string]string
}

// NewAssociationMap returns an empty map.
func NewAssociationMap() *AssociationMap {
	return &AssociationMap{
		v1: make(map[string][]string),
		v2: make(map[string]string),
	}
}

// AddV1 appends a classic load balancer name. Order and duplicates are kept.
func (m *AssociationMap) AddV1(instanceID, name string) {
	m.v1[instanceID] = append(m.v1[instanceID], name)
}

// SetV2 records a v2 load balancer name. The last observed name wins.
func (m *AssociationMap) SetV2(instanceID, name string) {
	m.v2[instanceID] = name
}

// Lookup returns the load balancers serving instanceID: every classic name
// if there is one, else the v2 name, else nil.
func (m *AssociationMap) Lookup(instanceID string) []string {
	if names := m.v1[instanceID]; len(names) > 0 {
		return append([]string(nil), names...)
	}
	if name, ok := m.v2[instanceID]; ok {
		return []string{name}
	}
	return nil
}

// Len returns the number of distinct instances with any association.
func (m *AssociationMap) Len() int {
	n := len(m.v1)
	for id := range m.v2 {
		if _, ok := m.v1[id]; !ok {
			n++
		}
	}
	return n
}
