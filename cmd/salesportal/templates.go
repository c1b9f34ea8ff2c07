package main

const configHeader = `# salesportal workspace settings.
# Environment variables SALESPORTAL_CAMPAIGN, SALESPORTAL_RECOMPUTE_INTERVAL,
# SALESPORTAL_LISTEN_ADDR and SALESPORTAL_LOG_LEVEL override these values.
`

const rulesHeader = `# Scoring rule table. The daemon reloads this file when it changes.
# Check edits with: salesportal rules validate
`

const sampleOrgTemplate = `# Sample reference data. Import with: salesportal org import org.yml
business_units:
  - id: 1
    name: North Circle

teams:
  - id: 10
    campaign: 1
    unit: 1
    code: N-ALPHA
    name: Alpha
  - id: 20
    campaign: 1
    unit: 1
    code: N-BRAVO
    name: Bravo

employees:
  - id: 1001
    code: E1001
    name: Asha
    team: 10
  - id: 1002
    code: E1002
    name: Ravi
    team: 10
  - id: 2001
    code: E2001
    name: Meena
    team: 20

activity_types:
  - MNP
  - SIM Sales
  - 4G SIM Upgradation
  - BNU connections
  - Urban connections
  - House Visit
  - FTTH Connection

targets:
  - campaign: 1
    level: team
    entity: 10
    activity_type: MNP
    value: 20
  - campaign: 1
    level: team
    entity: 20
    activity_type: MNP
    value: 20
  - campaign: 1
    level: team
    entity: 10
    activity_type: SIM Sales
    value: 40
  - campaign: 1
    level: team
    entity: 20
    activity_type: SIM Sales
    value: 40
  - campaign: 1
    level: business_unit
    entity: 1
    activity_type: SIM Sales
    value: 80
`
