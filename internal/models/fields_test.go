package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsByDocumentType(t *testing.T) {
	fields, err := ParseFields(DocTypePayStub, []byte(`{
		"employer_name": "Acme Corp",
		"pay_frequency": "biweekly",
		"gross_current": 2000,
		"ot_current": 150.5
	}`))
	require.NoError(t, err)
	require.NotNil(t, fields.PayStub)
	assert.Equal(t, FreqBiweekly, fields.PayStub.PayFrequency)
	assert.Equal(t, 2000.0, fields.PayStub.GrossCurrent)
	assert.Equal(t, 150.5, fields.PayStub.OvertimeCurrent)
	assert.False(t, fields.Empty())

	fields, err = ParseFields(DocTypeW2, []byte(`{"wages": 60000, "tax_year": 2024}`))
	require.NoError(t, err)
	require.NotNil(t, fields.W2)
	assert.Equal(t, 60000.0, fields.W2.Wages)
	assert.Equal(t, 2024, fields.W2.TaxYear)

	fields, err = ParseFields(DocType1099, []byte(`{"payer": "Side Gig Inc"}`))
	require.NoError(t, err)
	assert.Equal(t, "Side Gig Inc", fields.Generic["payer"])
}

func TestParseFieldsInvalidJSON(t *testing.T) {
	_, err := ParseFields(DocTypeW2, []byte(`not json`))
	assert.Error(t, err)
}

func TestKnownDocumentType(t *testing.T) {
	assert.True(t, KnownDocumentType(DocTypeScheduleC))
	assert.False(t, KnownDocumentType("bank_statement"))
}
