package prevalidation

// blacklistTerms are categories that can never be a material or equipment
// purchase: labor and personnel charges, taxes and fees, personal
// consumables, profanity. Matching is token bounded against the item name
// and description.
var blacklistTerms = []string{
	// labor and personnel charges
	"labor",
	"labour",
	"technician",
	"overtime",
	"wages",
	"salary",
	"per diem",
	"hourly rate",
	"trip charge",
	"call out",
	"consulting",

	// taxes and fees
	"tax",
	"taxes",
	"vat",
	"surcharge",
	"fee",
	"fees",
	"penalty",
	"gratuity",
	"markup",
	"interest",

	// personal consumables
	"lunch",
	"dinner",
	"breakfast",
	"meal",
	"meals",
	"coffee",
	"snack",
	"snacks",
	"soda",
	"bottled water",
	"cigarettes",
	"beer",
	"wine",
	"liquor",
	"candy",

	// profanity
	"damn",
	"shit",
	"fuck",
}

// maintenanceKeywords is the facility-maintenance vocabulary. A single hit
// approves the item in the rule phase; each additional hit raises the score.
// Generic words like "parts" or "equipment" stay out of the table on purpose
// so vague submissions land in human review instead of auto-approving.
var maintenanceKeywords = []string{
	// plumbing
	"pipe", "pvc", "cpvc", "pex", "copper", "fitting", "fittings", "elbow",
	"coupling", "tee", "flange", "valve", "faucet", "toilet", "urinal",
	"drain", "trap", "gasket", "seal", "sealant", "caulk", "solder", "flux",
	"hose", "tubing", "strainer", "sprinkler", "hydrant",

	// electrical
	"wire", "cable", "conduit", "breaker", "fuse", "relay", "contactor",
	"capacitor", "ballast", "transformer", "outlet", "receptacle", "switch",
	"dimmer", "lamp", "bulb", "fixture", "led",

	// hvac and mechanical
	"hvac", "thermostat", "damper", "duct", "ductwork", "filter",
	"refrigerant", "freon", "coil", "compressor", "condenser", "evaporator",
	"furnace", "boiler", "chiller", "pump", "motor", "fan", "blower", "belt",
	"bearing", "pulley", "gauge", "regulator",

	// general hardware and building materials
	"anchor", "bolt", "screw", "nut", "washer", "fastener", "rivet", "hinge",
	"lockset", "deadbolt", "lumber", "plywood", "drywall", "insulation",
	"shingle", "paint", "primer", "grout", "mortar", "concrete", "rebar",
	"adhesive", "epoxy", "grease", "lubricant", "battery", "generator",

	// tools
	"wrench", "drill", "saw", "grinder", "ladder", "trowel",
}
