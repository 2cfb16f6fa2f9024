package core

// oidTable maps host assigned object ids to configured objects
type oidTable struct {
	objs      []any
	allocated bool
}

func (k *Kernel) allocateOids(count int) {
	if k.oids.allocated {
		k.Shutdown(ReasonOidsAllocated)
	}
	k.oids.objs = make([]any, count)
	k.oids.allocated = true
}

// oidAlloc binds obj to oid. Only legal before finalize_config.
func (k *Kernel) oidAlloc(oid uint32, obj any) {
	if oid >= uint32(len(k.oids.objs)) || k.oids.objs[oid] != nil || k.configCRC != 0 {
		k.Shutdown(ReasonCantAssignOid)
	}
	k.oids.objs[oid] = obj
}

// oidLookup returns the object bound to oid, which must be a T
func oidLookup[T any](k *Kernel, oid uint32) T {
	if oid >= uint32(len(k.oids.objs)) {
		k.Shutdown(ReasonInvalidOid)
	}
	obj, ok := k.oids.objs[oid].(T)
	if !ok {
		k.Shutdown(ReasonInvalidOidType)
	}
	return obj
}

// forEachOid calls fn for every configured object of type T
func forEachOid[T any](k *Kernel, fn func(oid uint8, obj T)) {
	for i, o := range k.oids.objs {
		if obj, ok := o.(T); ok {
			fn(uint8(i), obj)
		}
	}
}

func (k *Kernel) clearOids() {
	k.oids.objs = nil
	k.oids.allocated = false
}
