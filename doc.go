// Package trew is a reflection-driven dependency injector for Go.
//
// Modules declare bindings from keys to the way their values are produced.
// The injector resolves object graphs on demand: constructor parameters,
// tagged struct fields and Inject* methods are filled from other bindings,
// or from types it can construct on its own.
//
// # Features
//
//   - Keys are a type plus an optional qualifier (a name, a marker type or
//     a comparable value)
//   - Linked, instance, provider, provider-type and provider-method bindings
//   - Singleton and custom scopes
//   - Generic providers that serve every parameterization of a raw type
//   - Multibindings assembled into slices, sets and maps
//   - Assisted factories generated for func types
//   - Property injection from YAML or dotenv sources
//   - Configuration and resolution errors aggregated and reported once
//
// # Quick Start
//
//	type AppModule struct{}
//
//	func (AppModule) Configure(b trew.Binder) {
//	    trew.BindTo[Logger, *ConsoleLogger](b).Singleton()
//	    trew.Bind[string](b).Named("greeting").ToInstance("hello")
//	}
//
//	inj, err := trew.New(trew.WithModules(AppModule{}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := trew.Get[*GreetingService](inj)
//
// # Injection Points
//
// Fields are injected when tagged, or for every exported field when the
// struct embeds InjectAll:
//
//	type GreetingService struct {
//	    Logger   Logger `inject:""`
//	    Greeting string `inject:"name=greeting"`
//	    Metrics  Metrics `inject:"optional"`
//	}
//
// Constructors are registered explicitly. Their parameters are tagged in
// order:
//
//	b.RegisterConstructor(NewServer, trew.ParamTags("name=addr", ""))
//
// Methods of the pointer method set named Inject* are called after the
// fields are set, with their parameters resolved.
//
// # Scopes
//
// A binding is put in a scope with In, or Singleton:
//
//	trew.Bind[*Cache](b).Singleton()
//
// Types that embed AsSingleton are singletons when bound just in time.
//
// # Multibindings
//
//	trew.MultiBind[Plugin](b).AsSlice().To(key.For[*AuthPlugin]())
//	trew.MultiBind[Plugin](b).AsSlice().To(key.For[*CachePlugin]())
//	plugins, err := trew.Get[[]Plugin](inj)
//
// # Assisted Factories
//
// A factory func type receives part of the constructor arguments from its
// caller:
//
//	type PaymentFactory func(amount int) *Payment
//
//	b.RegisterConstructor(NewPayment, trew.Assisted(), trew.ParamTags("", "assist"))
//	trew.Bind[*Payment](b).ToFactory(reflect.TypeOf(PaymentFactory(nil)))
//
// # Error Handling
//
// Configuration errors are returned by New as a *BindingError. Errors met
// while resolving are returned by the root call as an *InjectionError.
// Both unwrap to their members, so errors.Is and errors.As work:
//
//	_, err := trew.Get[*Service](inj)
//	var missing *trew.MemberError
//	if errors.As(err, &missing) {
//	    log.Printf("missing %s", missing.Key)
//	}
//
// # Thread Safety
//
// An Injector is safe for concurrent use. Each root call owns its
// ProvisionStack; the binding table and singletons use double-checked
// locking.
package trew
