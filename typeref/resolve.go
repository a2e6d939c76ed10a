package typeref

import "fmt"

const maxResolveDepth = 64

// Resolve substitutes the type variables of t with the actual type arguments
// found in context's supertype chain.
//
// Classes are returned unchanged. Variables declared by a function are
// returned unresolved, so callers must check RequiresContext on the result.
// Composite nodes are rebuilt only when one of their parts changed;
// otherwise t itself is returned.
func Resolve(context, t *Type) *Type {
	if context == nil || !t.RequiresContext() {
		return t
	}

	switch t.kind {
	case Variable:
		return resolveVariable(context, t)
	case Parameterized:
		owner := Resolve(context, t.owner)
		changed := owner != t.owner
		args := make([]*Type, len(t.args))
		for i, arg := range t.args {
			args[i] = Resolve(context, arg)
			changed = changed || args[i] != arg
		}
		if !changed {
			return t
		}
		return ParameterizeIn(owner, t.raw, args...)
	case Array:
		elem := Resolve(context, t.elem)
		if elem == t.elem {
			return t
		}
		return ArrayOf(elem)
	case Wildcard:
		upper := Resolve(context, t.upper)
		lower := t.lower
		if lower != nil {
			lower = Resolve(context, lower)
		}
		if upper == t.upper && lower == t.lower {
			return t
		}
		return wildcard(upper, lower)
	}
	return t
}

func resolveVariable(context, v *Type) *Type {
	current := v
	for hops := 0; current.kind == Variable; hops++ {
		if hops == maxResolveDepth {
			return current
		}
		next := lookupVariable(context, current)
		if next == current {
			return current
		}
		current = next
	}
	return Resolve(context, current)
}

func lookupVariable(context, v *Type) *Type {
	if v.declarer == nil {
		return v
	}
	super := SupertypeOf(context, v.declarer)
	if super == nil || super.kind != Parameterized {
		return v
	}
	if v.index >= len(super.args) || super.raw.params[v.index] != v {
		panic(fmt.Sprintf("typeref: cannot resolve type variable %s, no type argument found in %s", v, super))
	}
	return super.args[v.index]
}

// SupertypeOf walks context and its supertypes, substituted in context,
// looking for the given family. It returns nil when the family is not part
// of the hierarchy.
func SupertypeOf(context, family *Type) *Type {
	return supertypeOf(context, family, 0)
}

func supertypeOf(context, family *Type, depth int) *Type {
	if context == nil || depth > maxResolveDepth {
		return nil
	}
	if context.Raw() == family {
		return context
	}
	for _, super := range context.Raw().Supertypes() {
		if context.kind == Parameterized {
			super = Resolve(context, super)
		}
		if found := supertypeOf(super, family, depth+1); found != nil {
			return found
		}
	}
	return nil
}
