package trew

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// Example types for documentation
type ExampleGreeter interface {
	Greet() string
}

type ExampleSimpleGreeter struct {
	Greeting string `inject:"name=greeting"`
}

func (g *ExampleSimpleGreeter) Greet() string {
	return g.Greeting + ", Trew!"
}

type ExampleHandler interface {
	Route() string
}

type ExampleRoute string

func (r ExampleRoute) Route() string { return string(r) }

type ExampleOrder struct {
	Item  string
	Clock *ExampleClock
}

type ExampleClock struct {
	AsSingleton
}

func NewExampleOrder(clock *ExampleClock, item string) *ExampleOrder {
	return &ExampleOrder{Item: item, Clock: clock}
}

type ExampleOrderFactory func(item string) *ExampleOrder

func ExampleNew() {
	inj, err := New()
	fmt.Printf("Injector created: %v, error: %v\n", inj != nil, err)
	// Output: Injector created: true, error: <nil>
}

func ExampleBind() {
	inj, err := New(WithModules(ModuleFunc(func(b Binder) {
		BindTo[ExampleGreeter, *ExampleSimpleGreeter](b).Singleton()
		Bind[string](b).Named("greeting").ToInstance("Hello")
	})))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	greeter, _ := Get[ExampleGreeter](inj)
	fmt.Println(greeter.Greet())
	// Output: Hello, Trew!
}

func ExampleMultiBind() {
	inj := MustNew(WithModules(ModuleFunc(func(b Binder) {
		MultiBind[ExampleHandler](b).AsSlice().ToInstance(ExampleRoute("/users"))
		MultiBind[ExampleHandler](b).AsSlice().ToInstance(ExampleRoute("/orders"))
	})))

	handlers := MustGet[[]ExampleHandler](inj)
	for _, h := range handlers {
		fmt.Println(h.Route())
	}
	// Output:
	// /users
	// /orders
}

func ExampleMultiBindMap() {
	inj := MustNew(WithModules(ModuleFunc(func(b Binder) {
		MultiBindMap[string, int](b).Bind("retries").ToInstance(3)
		MultiBindMap[string, int](b).Bind("timeout").ToInstance(30)
	})))

	limits := MustGet[map[string]int](inj)
	names := make([]string, 0, len(limits))
	for name := range limits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s=%d\n", name, limits[name])
	}
	// Output:
	// retries=3
	// timeout=30
}

func ExampleBindingBuilder_ToFactory() {
	inj := MustNew(WithModules(ModuleFunc(func(b Binder) {
		b.RegisterConstructor(NewExampleOrder, Assisted(), ParamTags("", "assist"))
		Bind[*ExampleOrder](b).ToFactory(reflect.TypeOf(ExampleOrderFactory(nil)))
	})))

	newOrder := MustGet[ExampleOrderFactory](inj)
	first, second := newOrder("book"), newOrder("pen")
	fmt.Println(first.Item, second.Item, first.Clock == second.Clock)
	// Output: book pen true
}

func ExampleInjector_GetInstance() {
	inj := MustNew()

	_, err := inj.GetInstance(key.For[ExampleGreeter]())
	fmt.Println(err)
	// Output: injection failed: no constructor found for type trew.ExampleGreeter
}
