package parsers

// Registry maps each parser's declared name to the plugins eligible for it.
// It is built explicitly at process start and passed by reference; there is
// no global registration side effect. Plugin constructors rather than
// instances are registered so that every artifact gets fresh plugin state.
type Registry struct {
	parserOrder  []string
	parsers      map[string]func() ArtifactParser
	pluginOrder  map[string][]string
	constructors map[string]map[string]func() interface{}
}

func NewRegistry() *Registry {
	return &Registry{
		parsers:      map[string]func() ArtifactParser{},
		pluginOrder:  map[string][]string{},
		constructors: map[string]map[string]func() interface{}{},
	}
}

// RegisterParser adds a parser constructor under its declared name.
// Registration order is the order parsers are attempted in.
func (r *Registry) RegisterParser(name string, construct func() ArtifactParser) {
	if _, dup := r.parsers[name]; dup {
		panic("parser registered twice: " + name)
	}
	r.parsers[name] = construct
	r.parserOrder = append(r.parserOrder, name)
}

// RegisterPlugin adds a plugin constructor for the named parser. The
// concrete plugin interface is parser specific, so constructors are stored
// untyped and asserted by the owning parser.
func (r *Registry) RegisterPlugin(parserName, pluginName string, construct func() interface{}) {
	if r.constructors[parserName] == nil {
		r.constructors[parserName] = map[string]func() interface{}{}
	}
	if _, dup := r.constructors[parserName][pluginName]; dup {
		panic("plugin registered twice: " + parserName + "/" + pluginName)
	}
	r.constructors[parserName][pluginName] = construct
	r.pluginOrder[parserName] = append(r.pluginOrder[parserName], pluginName)
}

// ParserNames returns the declared parser names in registration order.
func (r *Registry) ParserNames() []string {
	return append([]string(nil), r.parserOrder...)
}

// PluginNamesFor returns the plugin names registered for the named parser,
// in registration order.
func (r *Registry) PluginNamesFor(parserName string) []string {
	return append([]string(nil), r.pluginOrder[parserName]...)
}

// NewParser constructs a fresh instance of the named parser, or nil when no
// such parser is registered.
func (r *Registry) NewParser(name string) ArtifactParser {
	construct, ok := r.parsers[name]
	if !ok {
		return nil
	}
	return construct()
}

// PluginsFor constructs fresh instances of every plugin registered for the
// named parser, in registration order.
func (r *Registry) PluginsFor(parserName string) []interface{} {
	names := r.pluginOrder[parserName]
	plugins := make([]interface{}, 0, len(names))
	for _, name := range names {
		plugins = append(plugins, r.constructors[parserName][name]())
	}
	return plugins
}
